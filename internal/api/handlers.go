package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/franz/dupe-janitor/internal/cluster"
	"github.com/franz/dupe-janitor/internal/session"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

type groupsResponse struct {
	Groups []cluster.Group `json:"groups"`
	Count  int             `json:"count"`
}

func (s *Server) handleDuplicates(w http.ResponseWriter, r *http.Request) {
	var groups []cluster.Group
	var err error
	if r.URL.Query().Get("refresh") != "" {
		groups, err = s.engine.Refresh(r.Context())
	} else {
		groups, err = s.engine.Groups(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if groups == nil {
		groups = []cluster.Group{}
	}
	writeJSON(w, http.StatusOK, groupsResponse{Groups: groups, Count: len(groups)})
}

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Start()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (s *Server) handleListScans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Sessions())
}

func (s *Server) handleScanStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Status(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	snap, err := s.sessions.Cancel(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// handleScanEvents streams progress snapshots and group batches for one
// session. The stream ends with the terminal snapshot.
func (s *Server) handleScanEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.sessions.Status(id); err != nil {
		writeError(w, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		util.WarnLog("Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := s.events.Subscribe(id)
	defer unsubscribe()

	// A session that finished before we subscribed only reports its outcome
	snap, err := s.sessions.Status(id)
	if err != nil || snap.Stage.Terminal() {
		if err == nil {
			writeEvent(conn, session.Event{Progress: &snap})
		}
		closeStream(conn)
		return
	}

	// Reader detects the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				closeStream(conn)
				return
			}
			if err := writeEvent(conn, ev); err != nil {
				util.DebugLog("Websocket write for session %s failed: %v", id, err)
				return
			}
		case <-gone:
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev session.Event) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(ev)
}

func closeStream(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session finished")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
}

type executeRequest struct {
	Exclude []int64 `json:"exclude"`
}

func (s *Server) handleResolvePreview(w http.ResponseWriter, r *http.Request) {
	groups, err := s.engine.Groups(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decisions": s.planner.Preview(groups)})
}

func (s *Server) handleResolveExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	groups, err := s.engine.Groups(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := s.planner.Execute(r.Context(), groups, req.Exclude)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// decodeOptionalBody treats an empty body as the zero request
func decodeOptionalBody(r *http.Request, v any) error {
	err := decodeBody(r, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type directoryRequest struct {
	Keep   string `json:"keep"`
	Delete string `json:"delete"`
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := s.directories.Conflicts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

func (s *Server) handleConflictPreview(w http.ResponseWriter, r *http.Request) {
	var req directoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	files, err := s.directories.PreviewResolution(r.Context(), req.Keep, req.Delete)
	if err != nil {
		writeError(w, err)
		return
	}
	if files == nil {
		files = []*store.FileRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleConflictResolve(w http.ResponseWriter, r *http.Request) {
	var req directoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	out, err := s.directories.Resolve(r.Context(), req.Keep, req.Delete)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", util.ErrInvalidInput, name)
	}
	return id, nil
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	a, err := parseID(q.Get("a"), "a")
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := parseID(q.Get("b"), "b")
	if err != nil {
		writeError(w, err)
		return
	}

	cmp, err := s.dedupe.Compare(a, b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"], "id")
	if err != nil {
		writeError(w, err)
		return
	}

	found, err := s.dedupe.Similar(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(mux.Vars(r)["id"], "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.dedupe.DeleteFile(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type metadataRequest struct {
	IDs  []int64            `json:"ids"`
	Edit store.MetadataEdit `json:"edit"`
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var req metadataRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	n, err := s.dedupe.UpdateMetadata(req.IDs, req.Edit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

type keepRequest struct {
	Keep    int64   `json:"keep"`
	Members []int64 `json:"members"`
}

func (s *Server) handleKeepOne(w http.ResponseWriter, r *http.Request) {
	var req keepRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.dedupe.KeepOne(req.Keep, req.Members)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
