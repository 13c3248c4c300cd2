package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/prgate/prgate/internal/executor"
)

// GetFile fetches a file's decoded content and blob sha at ref.
func (c *Client) GetFile(ctx context.Context, repo, path, ref string) (executor.File, error) {
	base, err := repoPath(repo)
	if err != nil {
		return executor.File{}, err
	}
	var ct content
	params := map[string]string{"ref": ref}
	if _, err := c.getJSON(ctx, base+"/contents/"+escapePath(path), params, &ct); err != nil {
		return executor.File{}, fmt.Errorf("failed to fetch %s@%s: %w", path, ref, err)
	}
	if ct.Type != "file" {
		return executor.File{}, fmt.Errorf("%s@%s is a %s, not a file", path, ref, ct.Type)
	}
	data := ct.Content
	if ct.Encoding == "base64" {
		raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(ct.Content, "\n", ""))
		if err != nil {
			return executor.File{}, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		data = string(raw)
	}
	return executor.File{Path: path, Ref: ref, Content: data, SHA: ct.SHA}, nil
}

// UpdateFile writes a file on a branch. A stale PriorSHA surfaces as
// ErrConflict.
func (c *Client) UpdateFile(ctx context.Context, repo string, u executor.FileUpdate) error {
	base, err := repoPath(repo)
	if err != nil {
		return err
	}
	msg := u.Message
	if msg == "" {
		msg = "Update " + u.Path
	}
	reqBody := map[string]string{
		"message": msg,
		"content": base64.StdEncoding.EncodeToString([]byte(u.Content)),
		"branch":  u.Branch,
	}
	if u.PriorSHA != "" {
		reqBody["sha"] = u.PriorSHA
	}
	urlStr := c.buildURL(base+"/contents/"+escapePath(u.Path), nil)
	if _, _, err := c.doRequest(ctx, http.MethodPut, urlStr, reqBody); err != nil {
		return fmt.Errorf("failed to update %s on %s: %w", u.Path, u.Branch, err)
	}
	return nil
}
