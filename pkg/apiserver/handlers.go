package apiserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/datafundament/pandregister/pkg/backend"
	"github.com/datafundament/pandregister/pkg/csvio"
	"github.com/datafundament/pandregister/pkg/db"
	"github.com/datafundament/pandregister/pkg/model"
	"github.com/datafundament/pandregister/pkg/version"
)

type handler struct {
	backend backend.Backend
}

func newHandler(b backend.Backend) *handler {
	return &handler{
		backend: b,
	}
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	v := version.Get()
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.WriteHeader(500)
		_, _ = w.Write([]byte(`{"success": false}`))
	}
}

func pandcodeVar(r *http.Request) (int, error) {
	raw := mux.Vars(r)["pandcode"]
	pandcode, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.MalformedInput{Reason: fmt.Sprintf("'%s' is geen geldige pandcode", raw)}
	}
	return pandcode, nil
}

func idVar(r *http.Request) (uint, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, model.MalformedInput{Reason: fmt.Sprintf("'%s' is geen geldig id", raw)}
	}
	return uint(id), nil
}

// searchParams reads the query engine's parameter bag off the URL. Every
// query parameter rides along in Extra so choice filters can find their
// term under the property's own short-name.
func searchParams(r *http.Request) model.SearchParams {
	values := r.URL.Query()
	extra := make(map[string]string, len(values))
	for key := range values {
		extra[key] = values.Get(key)
	}
	page, _ := strconv.Atoi(values.Get("page"))
	return model.SearchParams{
		Property: values.Get("property"),
		Search:   values.Get("search"),
		Extra:    extra,
		Archive:  values.Get("archief"),
		OrderBy:  values.Get("order_by"),
		Order:    values.Get("order"),
		Page:     page,
	}
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	result, err := h.backend.Search(actor, searchParams(r))
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, result)
}

func (h *handler) saveSite(w http.ResponseWriter, r *http.Request) {
	var input model.SiteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		handleError(w, model.MalformedInput{Reason: err.Error()})
		return
	}

	actor := actorFromContext(r.Context())
	pandcode, err := h.backend.SaveSite(actor, input)
	if err != nil {
		handleError(w, err)
		return
	}

	payload, err := h.backend.GetSite(actor, pandcode)
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, payload)
}

func (h *handler) updateSite(w http.ResponseWriter, r *http.Request) {
	pandcode, err := pandcodeVar(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var input model.SiteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		handleError(w, model.MalformedInput{Reason: err.Error()})
		return
	}
	input.Pandcode = &pandcode

	actor := actorFromContext(r.Context())
	if _, err := h.backend.SaveSite(actor, input); err != nil {
		handleError(w, err)
		return
	}

	payload, err := h.backend.GetSite(actor, pandcode)
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, payload)
}

func (h *handler) getSite(w http.ResponseWriter, r *http.Request) {
	pandcode, err := pandcodeVar(r)
	if err != nil {
		handleError(w, err)
		return
	}

	payload, err := h.backend.GetSite(actorFromContext(r.Context()), pandcode)
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, payload)
}

func (h *handler) archiveSite(w http.ResponseWriter, r *http.Request) {
	pandcode, err := pandcodeVar(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var input struct {
		Archived bool `json:"archief"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		handleError(w, model.MalformedInput{Reason: err.Error()})
		return
	}

	actor := actorFromContext(r.Context())
	if err := h.backend.ArchiveSite(actor, pandcode, input.Archived); err != nil {
		handleError(w, err)
		return
	}

	payload, err := h.backend.GetSite(actor, pandcode)
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, payload)
}

func (h *handler) deleteSite(w http.ResponseWriter, r *http.Request) {
	pandcode, err := pandcodeVar(r)
	if err != nil {
		handleError(w, err)
		return
	}

	if err := h.backend.DeleteSite(actorFromContext(r.Context()), pandcode); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", csvio.Filename(time.Now())))

	actor := actorFromContext(r.Context())
	if err := h.backend.ExportCSV(w, actor, searchParams(r)); err != nil {
		handleError(w, err)
	}
}

func (h *handler) importCSV(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if file, _, err := r.FormFile("file"); err == nil {
		defer file.Close()
		body = file
	}

	result, err := h.backend.ImportCSV(actorFromContext(r.Context()), body)
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, result)
}

func (h *handler) logs(w http.ResponseWriter, r *http.Request) {
	var pandcode *int
	if _, ok := mux.Vars(r)["pandcode"]; ok {
		code, err := pandcodeVar(r)
		if err != nil {
			handleError(w, err)
			return
		}
		pandcode = &code
	} else if raw := r.URL.Query().Get("pandcode"); raw != "" {
		code, err := strconv.Atoi(raw)
		if err != nil {
			handleError(w, model.MalformedInput{Reason: fmt.Sprintf("'%s' is geen geldige pandcode", raw)})
			return
		}
		pandcode = &code
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	result, err := h.backend.Logs(pandcode, page)
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, result)
}

func (h *handler) listProperties(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	props, err := h.backend.Properties(actor.Staff)
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, props)
}

func (h *handler) saveProperty(w http.ResponseWriter, r *http.Request) {
	var prop db.Property
	if err := json.NewDecoder(r.Body).Decode(&prop); err != nil {
		handleError(w, model.MalformedInput{Reason: err.Error()})
		return
	}

	if err := h.backend.SaveProperty(actorFromContext(r.Context()), &prop); err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, prop)
}

func (h *handler) deleteProperty(w http.ResponseWriter, r *http.Request) {
	id, err := idVar(r)
	if err != nil {
		handleError(w, err)
		return
	}
	if err := h.backend.DeleteProperty(actorFromContext(r.Context()), id); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.backend.Groups()
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, groups)
}

func (h *handler) saveGroup(w http.ResponseWriter, r *http.Request) {
	var group db.PropertyGroup
	if err := json.NewDecoder(r.Body).Decode(&group); err != nil {
		handleError(w, model.MalformedInput{Reason: err.Error()})
		return
	}

	if err := h.backend.SaveGroup(actorFromContext(r.Context()), &group); err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, group)
}

func (h *handler) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := idVar(r)
	if err != nil {
		handleError(w, err)
		return
	}
	if err := h.backend.DeleteGroup(actorFromContext(r.Context()), id); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) saveOption(w http.ResponseWriter, r *http.Request) {
	var option db.PropertyOption
	if err := json.NewDecoder(r.Body).Decode(&option); err != nil {
		handleError(w, model.MalformedInput{Reason: err.Error()})
		return
	}

	if err := h.backend.SaveOption(actorFromContext(r.Context()), &option); err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, option)
}

func (h *handler) deleteOption(w http.ResponseWriter, r *http.Request) {
	id, err := idVar(r)
	if err != nil {
		handleError(w, err)
		return
	}
	if err := h.backend.DeleteOption(actorFromContext(r.Context()), id); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listServices(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	services, err := h.backend.Services(actor.Staff)
	if err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, services)
}

func (h *handler) saveService(w http.ResponseWriter, r *http.Request) {
	var service db.ExternalService
	if err := json.NewDecoder(r.Body).Decode(&service); err != nil {
		handleError(w, model.MalformedInput{Reason: err.Error()})
		return
	}

	if err := h.backend.SaveService(actorFromContext(r.Context()), &service); err != nil {
		handleError(w, err)
		return
	}
	writeSuccess(w, service)
}

func (h *handler) deleteService(w http.ResponseWriter, r *http.Request) {
	id, err := idVar(r)
	if err != nil {
		handleError(w, err)
		return
	}
	if err := h.backend.DeleteService(actorFromContext(r.Context()), id); err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		handleError(w, model.MalformedInput{Reason: err.Error()})
		return
	}

	resp, err := h.backend.Login(input.Username, input.Password)
	if err != nil {
		handleError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    resp.Token,
		Expires:  resp.ExpiresAt,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeSuccess(w, resp)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		if cookie, err := r.Cookie(sessionCookie); err == nil {
			token = cookie.Value
		}
	}
	if token != "" {
		if err := h.backend.Logout(token); err != nil {
			handleError(w, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		MaxAge:   -1,
		Path:     "/",
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}
