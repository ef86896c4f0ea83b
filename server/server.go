package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/opsecid/webvh-server/models"
	"github.com/opsecid/webvh-server/webvh"
	slogecho "github.com/samber/slog-echo"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Server struct {
	httpd       *http.Server
	echo        *echo.Echo
	db          *gorm.DB
	logger      *slog.Logger
	config      *config
	engine      *webvh.Engine
	registrar   *Registrar
	adminAPIKey string
}

type Args struct {
	Addr             string
	DbURL            string
	Domain           string
	MethodVersion    string
	WitnessThreshold int
	KnownWitnessKey  string
	Watcher          string
	Portability      bool
	Prerotation      bool
	Endorsement      bool
	AdminAPIKey      string
	Logger           *slog.Logger
	Version          string
}

type config struct {
	Version         string
	Domain          string
	KnownWitnessKey string
}

type CustomValidator struct {
	validator *validator.Validate
}

type ValidationError struct {
	error
	Field string
	Tag   string
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		var validateErrors validator.ValidationErrors
		if errors.As(err, &validateErrors) && len(validateErrors) > 0 {
			first := validateErrors[0]
			return ValidationError{
				error: err,
				Field: first.Field(),
				Tag:   first.Tag(),
			}
		}

		return err
	}

	return nil
}

var segmentRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

func New(args *Args) (*Server, error) {
	if args.Addr == "" {
		return nil, fmt.Errorf("addr must be set")
	}

	if args.DbURL == "" {
		return nil, fmt.Errorf("db url must be set")
	}

	if args.Domain == "" {
		return nil, fmt.Errorf("server domain must be set")
	}

	if args.MethodVersion == "" {
		return nil, fmt.Errorf("webvh method version must be set")
	}

	if args.AdminAPIKey == "" {
		return nil, fmt.Errorf("admin api key must be set")
	}

	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	}

	e := echo.New()

	e.Pre(middleware.RemoveTrailingSlash())
	e.Pre(slogecho.New(args.Logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"*"},
		AllowMethods:     []string{"*"},
		AllowCredentials: true,
		MaxAge:           100_000_000,
	}))

	vdtor := validator.New()
	vdtor.RegisterValidation("did", func(fl validator.FieldLevel) bool {
		if _, err := syntax.ParseDID(fl.Field().String()); err != nil {
			return false
		}
		return true
	})
	vdtor.RegisterValidation("multikey", func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		return strings.HasPrefix(v, "z6M") && len(v) == 48
	})
	vdtor.RegisterValidation("path-segment", func(fl validator.FieldLevel) bool {
		return segmentRe.MatchString(fl.Field().String())
	})

	e.Validator = &CustomValidator{validator: vdtor}

	httpd := &http.Server{
		Addr:    args.Addr,
		Handler: e,
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(args.DbURL, "postgres://") {
		dialector = postgres.Open(args.DbURL)
	} else {
		dialector = sqlite.Open(args.DbURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	engine, err := webvh.NewEngine(webvh.Policy{
		Version:          args.MethodVersion,
		Domain:           args.Domain,
		WitnessThreshold: args.WitnessThreshold,
		Watcher:          args.Watcher,
		Portability:      args.Portability,
		Prerotation:      args.Prerotation,
		Endorsement:      args.Endorsement,
	}, &witnessRegistry{db: db})
	if err != nil {
		return nil, err
	}

	s := &Server{
		httpd:       httpd,
		echo:        e,
		logger:      args.Logger,
		db:          db,
		engine:      engine,
		adminAPIKey: args.AdminAPIKey,
		config: &config{
			Version:         args.Version,
			Domain:          args.Domain,
			KnownWitnessKey: args.KnownWitnessKey,
		},
	}

	s.registrar = NewRegistrar(s)

	return s, nil
}

func (s *Server) addRoutes() {
	s.echo.GET("/health", s.handleHealth)

	// identifiers
	s.echo.GET("/", s.handleRequestDID)
	s.echo.GET("/resolve", s.handleResolveDID)
	s.echo.POST("/:namespace/:alias", s.handleSubmitLogEntry)
	s.echo.GET("/:namespace/:alias/did.json", s.handleReadDID)
	s.echo.GET("/:namespace/:alias/did.jsonl", s.handleReadDIDLog)
	s.echo.GET("/:namespace/:alias/witness.json", s.handleReadWitnessFile)

	// attested resources
	s.echo.POST("/resources", s.handleUploadResource)
	s.echo.PUT("/:namespace/:alias/resources/:digest", s.handleUpdateResource)
	s.echo.GET("/:namespace/:alias/resources/:digest", s.handleGetResource)

	// verifiable credentials
	s.echo.POST("/:namespace/:alias/credentials", s.handleUploadCredential)
	s.echo.GET("/:namespace/:alias/credentials/:credentialId", s.handleGetCredential)

	// whois presentations
	s.echo.POST("/:namespace/:alias/whois", s.handleUploadWhois)
	s.echo.GET("/:namespace/:alias/whois.vp", s.handleGetWhois)

	// admin
	s.echo.GET("/admin/policy", s.handleGetPolicy, s.handleAdminMiddleware)
	s.echo.GET("/admin/known-witnesses", s.handleGetKnownWitnesses, s.handleAdminMiddleware)
	s.echo.POST("/admin/known-witnesses", s.handleAddKnownWitness, s.handleAdminMiddleware)
	s.echo.DELETE("/admin/known-witnesses/:multikey", s.handleRemoveKnownWitness, s.handleAdminMiddleware)
}

func (s *Server) Serve(ctx context.Context) error {
	s.addRoutes()

	s.logger.Info("migrating...")

	s.db.AutoMigrate(
		&models.DIDController{},
		&models.AttestedResourceRecord{},
		&models.CredentialRecord{},
		&models.KnownWitness{},
	)

	if err := s.seedKnownWitness(); err != nil {
		return err
	}

	s.logger.Info("starting webvh server", "domain", s.config.Domain, "addr", s.httpd.Addr)

	go func() {
		if err := s.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(err)
		}
	}()

	<-ctx.Done()

	return s.httpd.Shutdown(context.Background())
}

// seedKnownWitness registers the configured default witness key so a fresh
// deployment can enforce its witness policy immediately.
func (s *Server) seedKnownWitness() error {
	if s.config.KnownWitnessKey == "" {
		return nil
	}
	did := "did:key:" + s.config.KnownWitnessKey
	existing, err := s.getKnownWitness(did)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return s.db.Create(&models.KnownWitness{
		Did:   did,
		Label: "Default Server Witness",
	}).Error
}
