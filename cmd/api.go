package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/flx/internal/services"
	"github.com/desertthunder/flx/internal/shared"
)

// authHeader returns the bearer header for the current session, or nil when signed out.
func (r *Runner) authHeader() http.Header {
	if r.auth.UserID() == "" {
		return nil
	}
	tok, err := r.auth.Token()
	if err != nil {
		r.logger.Warn("sending request without a session", "error", err)
		return nil
	}
	h := http.Header{}
	tok.SetAuthHeader(&http.Request{Header: h})
	return h
}

func (r *Runner) writeResponse(resp *services.APIResponse, pretty bool) error {
	if !resp.OK() {
		return shared.NewAPIError(resp.StatusCode, string(resp.Body))
	}
	if resp.IsJSON {
		return r.writeJSON(resp.JSONData, pretty)
	}
	r.output.Write(resp.Body)
	r.output.Write([]byte("\n"))
	return nil
}

// APIGet makes a direct GET request to the backend
func (r *Runner) APIGet(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}

	r.logger.Info("GET request", "path", path)

	resp, err := r.api.Do(ctx, http.MethodGet, path, nil, r.authHeader())
	if err != nil {
		return err
	}
	return hint(r.writeResponse(resp, !cmd.Bool("json")))
}

// APIPost makes a direct POST request to the backend
func (r *Runner) APIPost(ctx context.Context, cmd *cli.Command) error {
	if err := r.open(ctx); err != nil {
		return err
	}
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}
	data := cmd.String("data")

	var probe any
	if err := json.Unmarshal([]byte(data), &probe); err != nil {
		return fmt.Errorf("%w: data is not valid JSON: %v", shared.ErrInvalidInput, err)
	}

	r.logger.Info("POST request", "path", path)

	header := r.authHeader()
	if header == nil {
		header = http.Header{}
	}
	header.Set("Prefer", "return=representation")

	resp, err := r.api.Do(ctx, http.MethodPost, path, []byte(data), header)
	if err != nil {
		return err
	}
	return hint(r.writeResponse(resp, true))
}
