package server

import (
	"context"
	"embed"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/kubernetes"

	"kdash/internal/cluster"
	"kdash/internal/cost"
	"kdash/internal/kube"
	"kdash/internal/prefs"
	"kdash/internal/stream"
	"kdash/internal/watch"
)

//go:embed ui_dist
var uiFS embed.FS

const (
	listTimeout   = 15 * time.Second
	detailTimeout = 20 * time.Second
	mutateTimeout = 30 * time.Second
	bulkTimeout   = 2 * time.Minute
)

type Server struct {
	mgr   *cluster.Manager
	prefs *prefs.Store
	cost  *cost.Client
	token string
}

func New(mgr *cluster.Manager, store *prefs.Store, costClient *cost.Client, token string) *Server {
	return &Server{mgr: mgr, prefs: store, cost: costClient, token: token}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Protected API
	r.Route("/api", func(api chi.Router) {
		api.Use(s.authMiddleware)

		api.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"ok":            true,
				"activeContext": s.mgr.ActiveContext(),
			})
		})

		api.Get("/contexts", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"active":   s.mgr.ActiveContext(),
				"contexts": s.mgr.ListContexts(),
			})
		})

		api.Post("/context/select", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Name string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
				return
			}
			if err := s.mgr.SetActiveContext(body.Name); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"active": s.mgr.ActiveContext()})
		})

		api.Get("/namespaces", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), listTimeout)
			defer cancel()

			cs, active, ok := s.clientset(ctx, w, r)
			if !ok {
				return
			}
			nss, err := kube.ListNamespaces(ctx, cs)
			if err != nil {
				writeKubeError(w, err, active)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"active": active, "items": nss})
		})

		// List endpoints for the four streamed kinds. The watch socket is
		// the live path; these serve initial paints and non-live screens.
		api.Get("/namespaces/{ns}/pods", s.listHandler(func(ctx context.Context, cs kubernetes.Interface, ns string) (any, error) {
			return kube.ListPods(ctx, cs, ns)
		}))
		api.Get("/namespaces/{ns}/jobs", s.listHandler(func(ctx context.Context, cs kubernetes.Interface, ns string) (any, error) {
			return kube.ListJobs(ctx, cs, ns)
		}))
		api.Get("/namespaces/{ns}/replicasets", s.listHandler(func(ctx context.Context, cs kubernetes.Interface, ns string) (any, error) {
			return kube.ListReplicaSets(ctx, cs, ns)
		}))
		api.Get("/namespaces/{ns}/services", s.listHandler(func(ctx context.Context, cs kubernetes.Interface, ns string) (any, error) {
			return kube.ListServices(ctx, cs, ns)
		}))
		api.Get("/namespaces/{ns}/helmreleases", s.listHandler(func(ctx context.Context, cs kubernetes.Interface, ns string) (any, error) {
			return kube.ListHelmReleases(ctx, cs, ns)
		}))

		api.Get("/namespaces/{ns}/pods/{name}", s.detailHandler(func(ctx context.Context, cs kubernetes.Interface, ns, name string) (any, error) {
			return kube.GetPodDetails(ctx, cs, ns, name)
		}))
		api.Get("/namespaces/{ns}/jobs/{name}", s.detailHandler(func(ctx context.Context, cs kubernetes.Interface, ns, name string) (any, error) {
			return kube.GetJobDetails(ctx, cs, ns, name)
		}))
		api.Get("/namespaces/{ns}/replicasets/{name}", s.detailHandler(func(ctx context.Context, cs kubernetes.Interface, ns, name string) (any, error) {
			return kube.GetReplicaSetDetails(ctx, cs, ns, name)
		}))
		api.Get("/namespaces/{ns}/services/{name}", s.detailHandler(func(ctx context.Context, cs kubernetes.Interface, ns, name string) (any, error) {
			return kube.GetServiceDetails(ctx, cs, ns, name)
		}))

		api.Get("/namespaces/{ns}/{kind}/{name}/yaml", func(w http.ResponseWriter, r *http.Request) {
			kind, ns, name, ok := kindParams(w, r)
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), detailTimeout)
			defer cancel()

			cs, active, csOK := s.clientset(ctx, w, r)
			if !csOK {
				return
			}
			doc, err := kube.ResourceYAML(ctx, cs, kind, ns, name)
			if err != nil {
				writeKubeError(w, err, active)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"active": active, "yaml": doc})
		})

		api.Get("/namespaces/{ns}/{kind}/{name}/events", func(w http.ResponseWriter, r *http.Request) {
			kind, ns, name, ok := kindParams(w, r)
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), detailTimeout)
			defer cancel()

			cs, active, csOK := s.clientset(ctx, w, r)
			if !csOK {
				return
			}
			evs, err := kube.ListEventsForObject(ctx, cs, ns, eventKindName(kind), name)
			if err != nil {
				writeKubeError(w, err, active)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"active": active, "items": evs})
		})

		api.Delete("/namespaces/{ns}/{kind}/{name}", func(w http.ResponseWriter, r *http.Request) {
			kind, ns, name, ok := kindParams(w, r)
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), mutateTimeout)
			defer cancel()

			cs, active, csOK := s.clientset(ctx, w, r)
			if !csOK {
				return
			}
			propagation := kube.Propagation(r.URL.Query().Get("propagation"))
			if err := kube.DeleteResource(ctx, cs, kind, ns, name, propagation); err != nil {
				writeKubeError(w, err, active)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"active": active, "deleted": ns + "/" + name})
		})

		api.Post("/namespaces/{ns}/replicasets/{name}/restart", func(w http.ResponseWriter, r *http.Request) {
			ns, name := chi.URLParam(r, "ns"), chi.URLParam(r, "name")
			ctx, cancel := context.WithTimeout(r.Context(), mutateTimeout)
			defer cancel()

			cs, active, ok := s.clientset(ctx, w, r)
			if !ok {
				return
			}
			if err := kube.RestartReplicaSet(ctx, cs, ns, name); err != nil {
				writeKubeError(w, err, active)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"active": active, "restarted": ns + "/" + name})
		})

		api.Post("/namespaces/{ns}/replicasets/{name}/scale", func(w http.ResponseWriter, r *http.Request) {
			ns, name := chi.URLParam(r, "ns"), chi.URLParam(r, "name")
			var body struct {
				Replicas *int32 `json:"replicas"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Replicas == nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), mutateTimeout)
			defer cancel()

			cs, active, ok := s.clientset(ctx, w, r)
			if !ok {
				return
			}
			if err := kube.ScaleReplicaSet(ctx, cs, ns, name, *body.Replicas); err != nil {
				writeKubeError(w, err, active)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"active": active, "replicas": *body.Replicas})
		})

		api.Post("/namespaces/{ns}/jobs/{name}/rerun", func(w http.ResponseWriter, r *http.Request) {
			ns, name := chi.URLParam(r, "ns"), chi.URLParam(r, "name")
			ctx, cancel := context.WithTimeout(r.Context(), mutateTimeout)
			defer cancel()

			cs, active, ok := s.clientset(ctx, w, r)
			if !ok {
				return
			}
			newName, err := kube.RerunJob(ctx, cs, ns, name)
			if err != nil {
				writeKubeError(w, err, active)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"active": active, "created": newName})
		})

		api.Post("/bulk/delete", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Kind        string           `json:"kind"`
				Propagation string           `json:"propagation"`
				Items       []kube.ObjectRef `json:"items"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Items) == 0 {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
				return
			}
			kind, ok := watch.ParseKind(body.Kind)
			if !ok {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown kind"})
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), bulkTimeout)
			defer cancel()

			cs, active, csOK := s.clientset(ctx, w, r)
			if !csOK {
				return
			}
			res := kube.BulkDelete(ctx, cs, kind, body.Items, kube.Propagation(body.Propagation))
			writeJSON(w, http.StatusOK, map[string]any{
				"active":  active,
				"result":  res,
				"summary": kube.FormatBulkSummary(res),
			})
		})

		api.Post("/bulk/restart", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Items []kube.ObjectRef `json:"items"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Items) == 0 {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), bulkTimeout)
			defer cancel()

			cs, active, ok := s.clientset(ctx, w, r)
			if !ok {
				return
			}
			res := kube.BulkRestart(ctx, cs, body.Items)
			writeJSON(w, http.StatusOK, map[string]any{
				"active":  active,
				"result":  res,
				"summary": kube.FormatBulkSummary(res),
			})
		})

		api.Post("/auth/can-i", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Verb      string `json:"verb"`
				Resource  string `json:"resource"`
				Group     string `json:"group"`
				Namespace string `json:"namespace"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Verb == "" || body.Resource == "" {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), listTimeout)
			defer cancel()

			cs, active, ok := s.clientset(ctx, w, r)
			if !ok {
				return
			}
			res, err := kube.CanI(ctx, cs, kube.AccessReview{
				Verb:      body.Verb,
				Resource:  body.Resource,
				Group:     body.Group,
				Namespace: body.Namespace,
			})
			if err != nil {
				writeKubeError(w, err, active)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"active": active, "result": res})
		})

		api.Get("/cost/allocation", func(w http.ResponseWriter, r *http.Request) {
			if s.cost == nil {
				writeJSON(w, http.StatusNotFound, map[string]any{"error": "cost backend not configured"})
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), mutateTimeout)
			defer cancel()

			raw, err := s.cost.Allocation(ctx, r.URL.Query().Get("window"), r.URL.Query().Get("aggregate"))
			if err != nil {
				writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(raw)
		})

		api.Get("/cost/status", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), listTimeout)
			defer cancel()

			cs, active, ok := s.clientset(ctx, w, r)
			if !ok {
				return
			}
			stat, err := cost.Detect(ctx, cs)
			if err != nil {
				writeKubeError(w, err, active)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"active": active, "status": stat})
		})

		api.Get("/prefs/{key}", func(w http.ResponseWriter, r *http.Request) {
			key := chi.URLParam(r, "key")
			if !prefs.ValidKey(key) {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown preference key"})
				return
			}
			val, err := s.prefs.Get(key)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
			if val == nil {
				writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": nil})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": json.RawMessage(val)})
		})

		api.Put("/prefs/{key}", func(w http.ResponseWriter, r *http.Request) {
			key := chi.URLParam(r, "key")
			if !prefs.ValidKey(key) {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown preference key"})
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
			if err != nil || !json.Valid(body) {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
				return
			}
			if err := s.prefs.Put(key, body); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"key": key, "saved": true})
		})

		api.Delete("/prefs/{key}", func(w http.ResponseWriter, r *http.Request) {
			key := chi.URLParam(r, "key")
			if !prefs.ValidKey(key) {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown preference key"})
				return
			}
			if err := s.prefs.Delete(key); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"key": key, "deleted": true})
		})

		api.Get("/watch/ws", (&stream.WatchWS{Clients: s.watchClients}).ServeHTTP)
		api.Get("/namespaces/{ns}/pods/{name}/logs/ws", (&stream.LogsWS{Mgr: s.mgr}).ServeHTTP)
	})

	// Embedded SPA
	r.Get("/*", s.serveUI)

	return r
}

// watchClients adapts the context manager to the watch pipeline's client
// resolver.
func (s *Server) watchClients(ctx context.Context, clusterID string) (kubernetes.Interface, error) {
	clients, err := s.mgr.ClientsFor(ctx, clusterID)
	if err != nil {
		return nil, err
	}
	return clients.Clientset, nil
}

// clientset resolves the clientset for the request, honoring an optional
// ?cluster= override of the active kubeconfig context.
func (s *Server) clientset(ctx context.Context, w http.ResponseWriter, r *http.Request) (kubernetes.Interface, string, bool) {
	if name := r.URL.Query().Get("cluster"); name != "" {
		clients, err := s.mgr.ClientsFor(ctx, name)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "active": name})
			return nil, name, false
		}
		return clients.Clientset, name, true
	}

	clients, active, err := s.mgr.GetClients(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "active": active})
		return nil, active, false
	}
	return clients.Clientset, active, true
}

type listFunc func(ctx context.Context, cs kubernetes.Interface, ns string) (any, error)

func (s *Server) listHandler(list listFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns := chi.URLParam(r, "ns")
		ctx, cancel := context.WithTimeout(r.Context(), listTimeout)
		defer cancel()

		cs, active, ok := s.clientset(ctx, w, r)
		if !ok {
			return
		}
		items, err := list(ctx, cs, ns)
		if err != nil {
			writeKubeError(w, err, active)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"active": active, "items": items})
	}
}

type detailFunc func(ctx context.Context, cs kubernetes.Interface, ns, name string) (any, error)

func (s *Server) detailHandler(get detailFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ns, name := chi.URLParam(r, "ns"), chi.URLParam(r, "name")
		ctx, cancel := context.WithTimeout(r.Context(), detailTimeout)
		defer cancel()

		cs, active, ok := s.clientset(ctx, w, r)
		if !ok {
			return
		}
		item, err := get(ctx, cs, ns, name)
		if err != nil {
			writeKubeError(w, err, active)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"active": active, "item": item})
	}
}

func kindParams(w http.ResponseWriter, r *http.Request) (watch.Kind, string, string, bool) {
	kind, ok := watch.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "unknown kind"})
		return "", "", "", false
	}
	ns, name := chi.URLParam(r, "ns"), chi.URLParam(r, "name")
	if ns == "" || name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing namespace or name"})
		return "", "", "", false
	}
	return kind, ns, name, true
}

// eventKindName maps a route kind to the InvolvedObject.Kind the events
// API records.
func eventKindName(kind watch.Kind) string {
	switch kind {
	case watch.KindPods:
		return "Pod"
	case watch.KindJobs:
		return "Job"
	case watch.KindReplicaSets:
		return "ReplicaSet"
	case watch.KindServices:
		return "Service"
	default:
		return string(kind)
	}
}

func writeKubeError(w http.ResponseWriter, err error, active string) {
	status := http.StatusInternalServerError
	switch {
	case apierrors.IsForbidden(err):
		status = http.StatusForbidden
	case apierrors.IsNotFound(err):
		status = http.StatusNotFound
	case apierrors.IsConflict(err):
		status = http.StatusConflict
	}
	log.Printf("api error (context %s): %v", active, err)
	writeJSON(w, status, map[string]any{"error": err.Error(), "active": active})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if strings.HasPrefix(token, "Bearer ") {
			token = strings.TrimPrefix(token, "Bearer ")
		} else {
			token = r.URL.Query().Get("token")
		}

		if token != s.token {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) serveUI(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/")
	if path == "" {
		path = "ui_dist/index.html"
	} else {
		path = "ui_dist/" + path
	}

	b, err := uiFS.ReadFile(path)
	if err != nil {
		b, err = uiFS.ReadFile("ui_dist/index.html")
		if err != nil {
			http.Error(w, "UI not built", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(b)
		return
	}

	w.Header().Set("Content-Type", contentTypeByPath(path))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func contentTypeByPath(p string) string {
	switch {
	case strings.HasSuffix(p, ".html"):
		return "text/html; charset=utf-8"
	case strings.HasSuffix(p, ".js"):
		return "application/javascript; charset=utf-8"
	case strings.HasSuffix(p, ".css"):
		return "text/css; charset=utf-8"
	case strings.HasSuffix(p, ".svg"):
		return "image/svg+xml"
	case strings.HasSuffix(p, ".png"):
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	if status >= http.StatusBadRequest {
		if payload, ok := v.(map[string]any); ok {
			if msg, ok := payload["error"].(string); ok && strings.TrimSpace(msg) != "" {
				payload["error"] = sanitizeErrorMessage(status)
				v = payload
			}
		}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sanitizeErrorMessage keeps cluster-internal detail (hostnames, RBAC
// subjects) out of responses; the precise error still goes to the log.
func sanitizeErrorMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusBadGateway:
		return "upstream unavailable"
	default:
		return "request failed"
	}
}
