package httpapi

import (
	"net/http"
	"strconv"

	"betmirror/application"
)

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listBets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	viewer, err := viewerFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid viewer_fid")
		return
	}
	statuses, err := parseStatuses(q["status"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	query := application.BetQuery{
		Address:  q.Get("address"),
		Statuses: statuses,
		Viewer:   viewer,
	}
	if raw := q.Get("fid"); raw != "" {
		fid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "bad_request", "invalid fid")
			return
		}
		query.FID = &fid
	}
	if raw := q.Get("include_hidden"); raw != "" {
		if query.IncludeHidden, err = strconv.ParseBool(raw); err != nil {
			respondError(w, http.StatusBadRequest, "bad_request", "invalid include_hidden")
			return
		}
	}
	for name, dst := range map[string]*int{"limit": &query.Limit, "offset": &query.Offset} {
		if raw := q.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				respondError(w, http.StatusBadRequest, "bad_request", "invalid "+name)
				return
			}
			*dst = n
		}
	}

	views, err := s.queries.List(r.Context(), query)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	out := make([]BetResponse, 0, len(views))
	for _, v := range views {
		out = append(out, viewResponse(v))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"bets": out})
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	betNumber, err := parseBetNumber(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid bet number")
		return
	}
	viewer, err := viewerFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid viewer_fid")
		return
	}

	view, err := s.queries.Get(r.Context(), betNumber, viewer)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewResponse(*view))
}

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	betNumber, err := parseBetNumber(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid bet number")
		return
	}

	entries, err := s.queries.Notifications(r.Context(), betNumber)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	out := make([]NotificationResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, notificationResponse(e))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"notifications": out})
}

func (s *Server) transitionBet(w http.ResponseWriter, r *http.Request) {
	betNumber, err := parseBetNumber(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid bet number")
		return
	}

	var body TransitionBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	req, err := body.request(betNumber)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	result, err := s.transitions.Execute(r.Context(), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, transitionResponse(result))
}

func (s *Server) createBet(w http.ResponseWriter, r *http.Request) {
	var body CreateBody
	if err := decodeBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}
	req, err := body.request()
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	result, err := s.transitions.Create(r.Context(), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, status, transitionResponse(result))
}

func (s *Server) reconcileBet(w http.ResponseWriter, r *http.Request) {
	betNumber, err := parseBetNumber(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid bet number")
		return
	}

	bet, err := s.reconciler.Reconcile(r.Context(), betNumber)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, betResponse(bet))
}
