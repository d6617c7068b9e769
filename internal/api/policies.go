package api

import (
	"encoding/json"
	"net/http"

	"github.com/swarmgate/safeguard/internal/policy"
	"github.com/swarmgate/safeguard/internal/store"
	"go.uber.org/zap"
)

func (d *Dependencies) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")
	pol, err := d.Store.GetPolicy(r.Context(), projectID)
	if err != nil {
		d.Logger.Error("failed to get policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get policy"})
		return
	}
	if pol == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, policyToResp(pol))
}

// handleReplacePolicy stores a full policy document. The body is the document
// itself, not a wrapper. It is parsed and compiled first so a document that
// would fail at check time is rejected at write time instead.
func (d *Dependencies) handleReplacePolicy(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("project_id")

	var document json.RawMessage
	if err := readJSON(r, &document); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if len(document) == 0 || string(document) == "null" {
		document = json.RawMessage(`{}`)
	}

	doc, err := policy.ParseJSON(document)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResp{Detail: err.Error()})
		return
	}
	if err := policy.NewValidator(doc).ValidateStructure(); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResp{Detail: err.Error()})
		return
	}
	if _, err := policy.Compile(doc, policy.CompileOptions{Checker: d.Checker}); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResp{Detail: err.Error()})
		return
	}

	pol, err := d.Store.ReplacePolicy(r.Context(), projectID, document)
	if err != nil {
		d.Logger.Error("failed to replace policy", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to replace policy"})
		return
	}
	if pol == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Policy not found."})
		return
	}
	writeJSON(w, http.StatusOK, policyToResp(pol))
}

// handleValidatePolicy dry-runs a policy document without storing it.
func (d *Dependencies) handleValidatePolicy(w http.ResponseWriter, r *http.Request) {
	var document json.RawMessage
	if err := readJSON(r, &document); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}

	doc, err := policy.ParseJSON(document)
	if err == nil {
		err = policy.NewValidator(doc).ValidateStructure()
	}
	var compiled *policy.Compiled
	if err == nil {
		compiled, err = policy.Compile(doc, policy.CompileOptions{Checker: d.Checker})
	}

	if err != nil {
		writeJSON(w, http.StatusOK, ValidatePolicyResp{Valid: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ValidatePolicyResp{
		Valid:            true,
		InterAgentRules:  len(compiled.InterAgent),
		EnvironmentRules: len(compiled.Environment),
	})
}

func policyToResp(p *store.Policy) PolicyResp {
	doc := p.Document
	if doc == nil {
		doc = json.RawMessage(`{}`)
	}
	return PolicyResp{
		ID:        p.ID,
		ProjectID: p.ProjectID,
		Document:  doc,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
