package server

import (
	"net/http"
	"strconv"

	"github.com/jrsteele09/go-vpn-auth-service/company"
)

const (
	defaultCompanyPageSize = 50
	maxCompanyPageSize     = 200
)

// CompanyListHandler returns a page of companies. Paging is controlled by
// the offset and limit query parameters.
func (s *Server) CompanyListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset := queryInt(r, "offset", 0)
		limit := queryInt(r, "limit", defaultCompanyPageSize)
		if limit > maxCompanyPageSize {
			limit = maxCompanyPageSize
		}
		companies, err := s.repos.Companies.List(offset, limit)
		if err != nil {
			errorJSON(w, http.StatusInternalServerError, "failed to list companies")
			return
		}
		writeJSON(w, http.StatusOK, companies)
	}
}

func (s *Server) CompanyCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var c company.Company
		if err := readJSON(r, &c); err != nil {
			errorJSON(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if c.Name == "" {
			errorJSON(w, http.StatusBadRequest, "company name is required")
			return
		}
		if err := s.repos.Companies.Create(&c); err != nil {
			errorJSON(w, http.StatusInternalServerError, "failed to create company")
			return
		}
		writeJSON(w, http.StatusCreated, &c)
	}
}

func (s *Server) CompanyGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := s.repos.Companies.Get(r.PathValue("pid"))
		if err != nil {
			errorJSON(w, http.StatusNotFound, "company not found")
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// CompanyPatchHandler applies a partial update. Changed fields and nested
// director or shareholder changes are recorded in the changelog.
func (s *Server) CompanyPatchHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch company.Patch
		if err := readJSON(r, &patch); err != nil {
			errorJSON(w, http.StatusBadRequest, "invalid request body")
			return
		}
		c, err := s.repos.Companies.ApplyPatch(r.PathValue("pid"), patch)
		if err != nil {
			if err == company.CompanyNotFoundErr {
				errorJSON(w, http.StatusNotFound, "company not found")
				return
			}
			errorJSON(w, http.StatusInternalServerError, "failed to update company")
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func (s *Server) CompanyChangeLogHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.repos.Companies.Get(r.PathValue("pid")); err != nil {
			errorJSON(w, http.StatusNotFound, "company not found")
			return
		}
		logs, err := s.repos.Companies.ChangeLogs(r.PathValue("pid"))
		if err != nil {
			errorJSON(w, http.StatusInternalServerError, "failed to load changelog")
			return
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
