package control

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MrWong99/streamtts/internal/links"
	"github.com/MrWong99/streamtts/internal/livecheck"
	"github.com/MrWong99/streamtts/internal/stats"
	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

type okBody struct {
	OK bool `json:"ok"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Start(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.Stop(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

type testSpeechRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleTestSpeech(w http.ResponseWriter, r *http.Request) {
	var req testSpeechRequest
	if err := decodeOptional(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.ctrl.TestSpeech(r.Context(), req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

type diagnosticsResponse struct {
	livecheck.Report
	OK bool `json:"ok"`
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	rep, err := s.ctrl.TestConnection(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diagnosticsResponse{Report: rep, OK: rep.OK()})
}

func (s *Server) handleResetRateLimit(w http.ResponseWriter, _ *http.Request) {
	if err := s.ctrl.ResetRateLimit(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

type streamRequest struct {
	StreamID string `json:"stream_id"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := decodeOptional(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.StreamID) == "" {
		http.Error(w, "stream_id is required", http.StatusBadRequest)
		return
	}
	if err := s.ctrl.SetStreamID(req.StreamID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

type voiceRequest struct {
	Voice string `json:"voice"`
}

type voiceResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Language string `json:"language"`
	Current  bool   `json:"current,omitempty"`
}

func toVoiceResponse(v tts.VoiceProfile, current string) voiceResponse {
	return voiceResponse{ID: v.ID, Name: v.Name, Language: v.ResolveLanguage(), Current: v.ID == current}
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	var req voiceRequest
	if err := decodeOptional(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Voice) == "" {
		http.Error(w, "voice is required", http.StatusBadRequest)
		return
	}
	v, err := s.ctrl.SetVoice(req.Voice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVoiceResponse(v, v.ID))
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	current := s.ctrl.Voice().ID
	voices := s.ctrl.Voices()
	out := make([]voiceResponse, len(voices))
	for i, v := range voices {
		out[i] = toVoiceResponse(v, current)
	}
	writeJSON(w, http.StatusOK, out)
}

type exportResponse struct {
	Path string `json:"path"`
}

func (s *Server) handleExportUsers(w http.ResponseWriter, _ *http.Request) {
	path, err := s.ctrl.ExportUsers()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{Path: path})
}

func (s *Server) handleClearUsers(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.ClearUsers()
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

type usersResponse struct {
	UniqueCount int          `json:"unique_count"`
	JoinCount   int          `json:"join_count"`
	Unique      []string     `json:"unique"`
	History     []stats.Join `json:"history"`
}

func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request) {
	roster := s.ctrl.Stats().Roster()
	unique, joins := roster.Counts()
	writeJSON(w, http.StatusOK, usersResponse{
		UniqueCount: unique,
		JoinCount:   joins,
		Unique:      nonNil(roster.Unique()),
		History:     nonNil(roster.History()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleLinks(w http.ResponseWriter, _ *http.Request) {
	s.serveLinks(w, func(l Links) (links.Document, error) { return l.Load() })
}

func (s *Server) handleReloadLinks(w http.ResponseWriter, _ *http.Request) {
	s.serveLinks(w, func(l Links) (links.Document, error) { return l.Reload() })
}

func (s *Server) serveLinks(w http.ResponseWriter, load func(Links) (links.Document, error)) {
	if s.links == nil {
		writeError(w, links.ErrNoFile)
		return
	}
	doc, err := load(s.links)
	if err != nil {
		writeError(w, err)
		return
	}
	if doc.Sections == nil {
		doc.Sections = []links.Section{}
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleLogs(w http.ResponseWriter, _ *http.Request) {
	if s.logs == nil {
		writeError(w, errors.New("control: activity log not configured"))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(s.logs.Entries()))
}

// nonNil returns an empty slice for nil so it encodes as [].
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
