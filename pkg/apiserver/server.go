package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oidc "github.com/coreos/go-oidc"
	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/datafundament/pandregister/pkg/backend"
	"github.com/datafundament/pandregister/pkg/version"
)

// OIDCConfig points the server at an external identity provider. A zero
// value disables the OIDC path and leaves only local sessions.
type OIDCConfig struct {
	Issuer   string
	ClientID string
}

type Config struct {
	Port int
	OIDC OIDCConfig
	// LocalLogin exposes username/password login; meant for the local
	// and testing environments, OIDC covers the rest.
	LocalLogin bool
	// StaticRoot serves the frontend bundle when set.
	StaticRoot string
}

type apiServer struct {
	ctx context.Context
	log *logrus.Entry
	cfg Config
}

func NewAPIServer(ctx context.Context, log *logrus.Entry, cfg Config) *apiServer {
	return &apiServer{
		ctx: ctx,
		log: log,
		cfg: cfg,
	}
}

func (a *apiServer) Start(backend backend.Backend) error {
	logrus.Infof("Version: %s", version.Get())

	var verifier *oidc.IDTokenVerifier
	if a.cfg.OIDC.Issuer != "" {
		provider, err := oidc.NewProvider(a.ctx, a.cfg.OIDC.Issuer)
		if err != nil {
			return fmt.Errorf("oidc issuer %s: %w", a.cfg.OIDC.Issuer, err)
		}
		verifier = provider.Verifier(&oidc.Config{ClientID: a.cfg.OIDC.ClientID})
		a.log.WithField("issuer", a.cfg.OIDC.Issuer).Info("oidc login enabled")
	}

	router := a.buildRouter(backend, verifier)

	// Note: this allows not found urls to be logged via the middleware
	// It **HAS** to be defined after all other paths are defined.
	router.NotFoundHandler = router.NewRoute().HandlerFunc(http.NotFound).GetHandler()

	// Below this point is where the server is started and graceful shutdown occurs.
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Port),
		Handler: ghandlers.CORS(ghandlers.AllowCredentials())(router),
	}

	go func() {
		a.log.WithField("port", a.cfg.Port).Info("starting api server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Fatalf("listen: %s\n", err)
		}
	}()

	go backend.StartPurgerDaemon(a.ctx.Done())

	<-a.ctx.Done()

	a.log.Info("shutting down the api server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer func() {
		cancel()
	}()

	if err := srv.Shutdown(ctx); err != nil {
		a.log.WithError(err).Error("unable to shutdown the api server gracefully")
		return err
	}

	return nil
}

func (a *apiServer) buildRouter(backend backend.Backend, verifier *oidc.IDTokenVerifier) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(loggingMiddleware(a.log))
	h := newHandler(backend)

	// When functioning properly, these routes will return the version of the app that is running
	router.Path("/").HandlerFunc(h.root)
	router.Path("/healthz").HandlerFunc(h.root)

	// Every /v1 route resolves the caller first; reads are open to the
	// anonymous actor and see only public data, everything else requires
	// a staff account.
	api := router.PathPrefix("/v1").Subrouter()
	api.Use(authMiddleware(backend, verifier))

	if a.cfg.LocalLogin {
		api.Path("/login").Methods("POST").HandlerFunc(h.login)
	}
	api.Path("/logout").Methods("POST").HandlerFunc(h.logout)

	api.Path("/locaties").Methods("GET").HandlerFunc(h.search)
	api.Path("/locaties").Methods("POST").HandlerFunc(requireStaff(h.saveSite))
	api.Path("/locaties/export").Methods("GET").HandlerFunc(h.exportCSV)
	api.Path("/locaties/import").Methods("POST").HandlerFunc(requireStaff(h.importCSV))
	api.Path("/locaties/{pandcode}").Methods("GET").HandlerFunc(h.getSite)
	api.Path("/locaties/{pandcode}").Methods("PUT").HandlerFunc(requireStaff(h.updateSite))
	api.Path("/locaties/{pandcode}").Methods("DELETE").HandlerFunc(requireStaff(h.deleteSite))
	api.Path("/locaties/{pandcode}/archief").Methods("POST").HandlerFunc(requireStaff(h.archiveSite))
	api.Path("/locaties/{pandcode}/logs").Methods("GET").HandlerFunc(requireStaff(h.logs))

	api.Path("/logs").Methods("GET").HandlerFunc(requireStaff(h.logs))

	api.Path("/catalogus/eigenschappen").Methods("GET").HandlerFunc(h.listProperties)
	api.Path("/catalogus/eigenschappen").Methods("POST").HandlerFunc(requireStaff(h.saveProperty))
	api.Path("/catalogus/eigenschappen/{id}").Methods("DELETE").HandlerFunc(requireStaff(h.deleteProperty))
	api.Path("/catalogus/groepen").Methods("GET").HandlerFunc(requireStaff(h.listGroups))
	api.Path("/catalogus/groepen").Methods("POST").HandlerFunc(requireStaff(h.saveGroup))
	api.Path("/catalogus/groepen/{id}").Methods("DELETE").HandlerFunc(requireStaff(h.deleteGroup))
	api.Path("/catalogus/opties").Methods("POST").HandlerFunc(requireStaff(h.saveOption))
	api.Path("/catalogus/opties/{id}").Methods("DELETE").HandlerFunc(requireStaff(h.deleteOption))
	api.Path("/catalogus/koppelingen").Methods("GET").HandlerFunc(h.listServices)
	api.Path("/catalogus/koppelingen").Methods("POST").HandlerFunc(requireStaff(h.saveService))
	api.Path("/catalogus/koppelingen/{id}").Methods("DELETE").HandlerFunc(requireStaff(h.deleteService))

	if a.cfg.StaticRoot != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(a.cfg.StaticRoot)))
	}

	return router
}
