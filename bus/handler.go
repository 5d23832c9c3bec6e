package bus

import "net/http"

// WorkspaceResolver binds an authenticated userUid to the workspace it may
// subscribe to. Authentication itself is out of scope (§4.7); main wires
// this against whatever identity/membership lookup the deployment uses.
type WorkspaceResolver func(userUID string) (workspaceID string, ok bool)

// Handler returns the /ws endpoint handler (§6 "/ws?userUid=..."):
// resolves userUid to a workspace and upgrades the connection.
func (h *Hub) Handler(resolve WorkspaceResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userUID := r.URL.Query().Get("userUid")
		if userUID == "" {
			http.Error(w, "missing userUid", http.StatusBadRequest)
			return
		}
		workspaceID, ok := resolve(userUID)
		if !ok {
			http.Error(w, "unknown user", http.StatusForbidden)
			return
		}
		h.ServeWS(w, r, workspaceID)
	}
}
