package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/microcosm-cc/bluemonday"

	"github.com/desertthunder/flx/internal/models"
	"github.com/desertthunder/flx/internal/repositories"
	"github.com/desertthunder/flx/internal/shared"
)

const (
	tableProgress = "watch_progress"
	tableProfiles = "profiles"

	progressConflictTarget = "user_id,media_id,media_type"
)

// reserved query parameters that are not column filters
var reserved = map[string]bool{"select": true, "order": true, "limit": true, "on_conflict": true}

// RESTHandler serves the row API under /rest/v1/{table}.
//
// Every query is scoped to the caller: a user_id (or profile id) filter naming another user matches
// nothing, and rows written on behalf of another user are rejected.
type RESTHandler struct {
	memberships map[string]*repositories.MembershipRepository
	progress    *repositories.ProgressRepository
	profiles    *repositories.ProfileRepository
	sanitizer   *bluemonday.Policy
	logger      *log.Logger
}

// NewRESTHandler creates a [RESTHandler] over the membership, progress and profile repositories.
func NewRESTHandler(
	memberships []*repositories.MembershipRepository,
	progress *repositories.ProgressRepository,
	profiles *repositories.ProfileRepository,
	logger *log.Logger,
) *RESTHandler {
	byTable := make(map[string]*repositories.MembershipRepository, len(memberships))
	for _, repo := range memberships {
		byTable[repo.Table()] = repo
	}
	return &RESTHandler{
		memberships: byTable,
		progress:    progress,
		profiles:    profiles,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger,
	}
}

// Routes implements [Handler].
func (h *RESTHandler) Routes() []string {
	return []string{
		"GET /rest/v1/{table}",
		"POST /rest/v1/{table}",
		"PATCH /rest/v1/{table}",
		"DELETE /rest/v1/{table}",
	}
}

// membershipRow is the wire form of a my_list or liked_items row.
type membershipRow struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	MediaID   int              `json:"media_id"`
	MediaType models.MediaType `json:"media_type"`
	CreatedAt time.Time        `json:"created_at"`
}

func toRows(userID string, items []models.MembershipItem) []membershipRow {
	rows := make([]membershipRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, membershipRow{
			ID: item.ID, UserID: userID, MediaID: item.MediaID, MediaType: item.MediaType, CreatedAt: item.CreatedAt,
		})
	}
	return rows
}

// query is a parsed row API request.
type query struct {
	filter    repositories.Filter
	foreign   bool // a user_id or profile id filter named someone else
	ascending bool
	limit     int
}

// errBadQuery marks request errors answered with 400.
var errBadQuery = errors.New("bad query")

func badQuery(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadQuery, fmt.Sprintf(format, args...))
}

func parseQuery(values url.Values, userID, orderColumn string) (query, error) {
	var q query
	for col, vals := range values {
		if reserved[col] {
			continue
		}
		for _, raw := range vals {
			v, ok := strings.CutPrefix(raw, "eq.")
			if !ok {
				return q, badQuery("unsupported operator in %s=%s", col, raw)
			}
			switch col {
			case "user_id":
				if v != userID {
					q.foreign = true
				}
			case "id":
				q.filter.ID = v
			case "media_id":
				id, err := strconv.Atoi(v)
				if err != nil || id <= 0 {
					return q, badQuery("invalid media_id %q", v)
				}
				q.filter.MediaID = id
			case "media_type":
				mt := models.MediaType(v)
				if !mt.Valid() {
					return q, badQuery("invalid media_type %q", v)
				}
				q.filter.MediaType = mt
			default:
				return q, badQuery("unknown column %q", col)
			}
		}
	}

	if order := values.Get("order"); order != "" {
		col, dir, _ := strings.Cut(order, ".")
		if col != orderColumn {
			return q, badQuery("cannot order by %q", col)
		}
		switch dir {
		case "", "desc":
		case "asc":
			q.ascending = true
		default:
			return q, badQuery("invalid order direction %q", dir)
		}
	}

	if limit := values.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return q, badQuery("invalid limit %q", limit)
		}
		q.limit = n
	}
	return q, nil
}

func prefers(r *http.Request, token string) bool {
	for _, v := range r.Header.Values("Prefer") {
		for _, part := range strings.Split(v, ",") {
			if strings.TrimSpace(part) == token {
				return true
			}
		}
	}
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(dest); err != nil {
		return badQuery("invalid JSON body: %v", err)
	}
	return nil
}

// ServeHTTP dispatches on table and method.
func (h *RESTHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := IdentityFromContext(r.Context())
	if !ok {
		writeRESTError(w, http.StatusUnauthorized, "missing identity")
		return
	}

	table := r.PathValue("table")
	var err error
	switch {
	case h.memberships[table] != nil:
		err = h.serveMembership(w, r, h.memberships[table], id.UserID)
	case table == tableProgress:
		err = h.serveProgress(w, r, id.UserID)
	case table == tableProfiles:
		err = h.serveProfiles(w, r, id.UserID)
	default:
		writeRESTError(w, http.StatusNotFound, fmt.Sprintf("relation %q does not exist", table))
		return
	}
	if err != nil {
		h.writeError(w, r, err)
	}
}

func (h *RESTHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errBadQuery), errors.Is(err, shared.ErrInvalidInput):
		writeRESTError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrAuth):
		writeRESTError(w, http.StatusForbidden, "new row violates row-level security policy")
	case errors.Is(err, shared.ErrConflict):
		writeRESTError(w, http.StatusConflict, "duplicate key value violates unique constraint")
	case errors.Is(err, shared.ErrNotFound):
		writeRESTError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrNotImplemented):
		writeRESTError(w, http.StatusMethodNotAllowed, fmt.Sprintf("%s is not supported on %s", r.Method, r.PathValue("table")))
	default:
		h.logger.Error("row request failed", "method", r.Method, "table", r.PathValue("table"), "err", err)
		writeRESTError(w, http.StatusInternalServerError, "internal server error")
	}
}

// ownRow checks the user_id of a written row.
func ownRow(rowUser, userID string) error {
	if rowUser != "" && rowUser != userID {
		return fmt.Errorf("%w: row belongs to another user", shared.ErrAuth)
	}
	return nil
}

func (h *RESTHandler) serveMembership(w http.ResponseWriter, r *http.Request, repo *repositories.MembershipRepository, userID string) error {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		q, err := parseQuery(r.URL.Query(), userID, "created_at")
		if err != nil {
			return err
		}
		if q.foreign {
			writeJSON(w, http.StatusOK, []membershipRow{})
			return nil
		}
		items, err := repo.List(ctx, userID, q.filter, q.ascending, q.limit)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, toRows(userID, items))
		return nil

	case http.MethodPost:
		var in membershipRow
		if err := decodeBody(w, r, &in); err != nil {
			return err
		}
		if err := ownRow(in.UserID, userID); err != nil {
			return err
		}
		item, err := repo.Insert(ctx, userID, in.MediaID, in.MediaType)
		if err != nil {
			return err
		}
		if prefers(r, "return=representation") {
			writeJSON(w, http.StatusCreated, toRows(userID, []models.MembershipItem{*item}))
			return nil
		}
		w.WriteHeader(http.StatusCreated)
		return nil

	case http.MethodDelete:
		q, err := parseQuery(r.URL.Query(), userID, "created_at")
		if err != nil {
			return err
		}
		if q.foreign {
			writeJSON(w, http.StatusOK, []membershipRow{})
			return nil
		}
		deleted, err := repo.Delete(ctx, userID, q.filter)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, toRows(userID, deleted))
		return nil

	default:
		return shared.ErrNotImplemented
	}
}

func (h *RESTHandler) serveProgress(w http.ResponseWriter, r *http.Request, userID string) error {
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet:
		q, err := parseQuery(r.URL.Query(), userID, "last_watched")
		if err != nil {
			return err
		}
		if q.foreign {
			writeJSON(w, http.StatusOK, []models.WatchProgress{})
			return nil
		}
		if q.ascending {
			return badQuery("watch_progress is ordered by last_watched.desc")
		}
		rows, err := h.progress.List(ctx, userID, q.filter, q.limit)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, rows)
		return nil

	case http.MethodPost:
		var in models.WatchProgress
		if err := decodeBody(w, r, &in); err != nil {
			return err
		}
		if err := ownRow(in.UserID, userID); err != nil {
			return err
		}
		in.UserID = userID

		merge := prefers(r, "resolution=merge-duplicates")
		if target := r.URL.Query().Get("on_conflict"); merge && target != "" && target != progressConflictTarget {
			return badQuery("on_conflict must be %s", progressConflictTarget)
		}
		if !merge {
			existing, err := h.progress.List(ctx, userID, repositories.Filter{MediaID: in.MediaID, MediaType: in.MediaType}, 1)
			if err != nil {
				return err
			}
			if len(existing) > 0 {
				return shared.ErrConflict
			}
		}

		stored, err := h.progress.Upsert(ctx, in)
		if err != nil {
			return err
		}
		if prefers(r, "return=representation") {
			writeJSON(w, http.StatusCreated, []models.WatchProgress{*stored})
			return nil
		}
		w.WriteHeader(http.StatusCreated)
		return nil

	case http.MethodDelete:
		q, err := parseQuery(r.URL.Query(), userID, "last_watched")
		if err != nil {
			return err
		}
		if q.foreign {
			writeJSON(w, http.StatusOK, []models.WatchProgress{})
			return nil
		}
		rows, err := h.progress.List(ctx, userID, q.filter, 0)
		if err != nil {
			return err
		}
		if _, err := h.progress.Delete(ctx, userID, q.filter); err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, rows)
		return nil

	default:
		return shared.ErrNotImplemented
	}
}

// profileScope reports whether an id=eq. filter, if any, names the caller.
func profileScope(values url.Values, userID string) (bool, error) {
	for col, vals := range values {
		if reserved[col] {
			continue
		}
		if col != "id" {
			return false, badQuery("unknown column %q", col)
		}
		for _, raw := range vals {
			v, ok := strings.CutPrefix(raw, "eq.")
			if !ok {
				return false, badQuery("unsupported operator in %s=%s", col, raw)
			}
			if v != userID {
				return false, nil
			}
		}
	}
	return true, nil
}

func (h *RESTHandler) sanitize(s *string) *string {
	if s == nil {
		return nil
	}
	clean := strings.TrimSpace(h.sanitizer.Sanitize(*s))
	return &clean
}

func (h *RESTHandler) serveProfiles(w http.ResponseWriter, r *http.Request, userID string) error {
	ctx := r.Context()

	own, err := profileScope(r.URL.Query(), userID)
	if err != nil {
		return err
	}

	switch r.Method {
	case http.MethodGet:
		if !own {
			writeJSON(w, http.StatusOK, []models.Profile{})
			return nil
		}
		profile, err := h.profiles.Get(ctx, userID)
		if errors.Is(err, shared.ErrNotFound) {
			writeJSON(w, http.StatusOK, []models.Profile{})
			return nil
		}
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, []models.Profile{*profile})
		return nil

	case http.MethodPatch:
		if !own {
			writeJSON(w, http.StatusOK, []models.Profile{})
			return nil
		}
		var in models.ProfileUpdate
		if err := decodeBody(w, r, &in); err != nil {
			return err
		}
		in.FullName = h.sanitize(in.FullName)
		in.AvatarURL = h.sanitize(in.AvatarURL)

		profile, err := h.profiles.Update(ctx, userID, in)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, []models.Profile{*profile})
		return nil

	default:
		return shared.ErrNotImplemented
	}
}
