package gateway

import (
	"context"
	"fmt"
	"net/http"

	"fixture-crawler/internal/assets"
	"fixture-crawler/internal/credential"
	"fixture-crawler/internal/crawlers"
	"fixture-crawler/internal/dump"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fixture-crawler/internal/crawlers/gateway")

const (
	Category = "gateway"

	deniedPassword = "not-the-admin-password"
)

var ErrLogin = fmt.Errorf("gateway authentication failed")

// messageLogin is captured under a different name for each outcome of the
// login message, which depends on the presence of the message file.
var messageLogin = assets.StatusKeyed(map[int]string{
	http.StatusOK:                  "message_login",
	http.StatusNotFound:            "message_login_not_found",
	http.StatusInternalServerError: "message_login_error",
})

// DrawTarget is an infrastructure diagram to render through the agent of
// a cluster.
type DrawTarget struct {
	Cluster        string
	Infrastructure string
}

type Config struct {
	URL      string
	User     string
	Password string
	// Draw is rendered when set.
	Draw *DrawTarget
}

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

type drawGeneral struct {
	PixelPerfect bool `json:"pixel_perfect"`
}

type drawDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type drawInfrastructure struct {
	EquipmentLabels bool `json:"equipment_labels"`
	GhostUnselected bool `json:"ghost_unselected"`
}

type drawRequest struct {
	General        drawGeneral        `json:"general"`
	Dimensions     drawDimensions     `json:"dimensions"`
	Infrastructure drawInfrastructure `json:"infrastructure"`
}

var drawBody = drawRequest{
	General:    drawGeneral{PixelPerfect: true},
	Dimensions: drawDimensions{Width: 1000, Height: 1000},
	Infrastructure: drawInfrastructure{
		EquipmentLabels: false,
		GhostUnselected: true,
	},
}

type step struct {
	req  dump.Request
	name assets.Name
}

type Crawler struct {
	env    crawlers.Env
	config Config
}

func New(env crawlers.Env, config Config) Crawler {
	return Crawler{env: env.Scoped(Category), config: config}
}

// Crawl logs in, captures the gateway endpoints and returns the bearer
// credential issued to the admin user.
func (c Crawler) Crawl(ctx context.Context) (bearer credential.Credential, err error) {
	ctx, span := tracer.Start(ctx, "gateway:Crawl")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "gateway crawl failed")
		}
	}()

	client, err := c.env.NewClient(Category, c.config.URL)
	if err != nil {
		return credential.Credential{}, err
	}
	dumper, err := c.env.OpenDumper(client, Category)
	if err != nil {
		return credential.Credential{}, err
	}
	defer c.env.CloseDumper(dumper, &err)

	bearer, err = c.login(ctx, dumper)
	if err != nil {
		return credential.Credential{}, err
	}

	_, err = dumper.Dump(
		ctx,
		dump.Post("/api/login", nil, loginRequest{User: c.config.User, Password: deniedPassword}),
		assets.Single("login-denied"),
		dump.Options{},
	)
	if err != nil {
		return credential.Credential{}, err
	}

	steps := []step{
		{req: dump.Get("/api/clusters", bearer.Header), name: assets.Single("clusters")},
		{req: dump.Get("/api/clusters", nil), name: assets.Single("clusters-unauthorized")},
		{req: dump.Get("/api/users", bearer.Header), name: assets.Single("users")},
		{req: dump.Get("/api/messages/login", nil), name: messageLogin},
	}
	if c.config.Draw != nil {
		steps = append(steps, step{
			req: dump.Post(
				fmt.Sprintf(
					"/api/agents/%s/racksdb/draw/infrastructure/%s.png?coordinates",
					c.config.Draw.Cluster, c.config.Draw.Infrastructure,
				),
				bearer.Header,
				drawBody,
			),
			name: assets.Single("racksdb-draw-coordinates"),
		})
	}
	steps = append(steps, step{req: dump.Get("/api/unknown/path", bearer.Header), name: assets.Single("unknown-path")})

	for _, s := range steps {
		_, err = dumper.Dump(ctx, s.req, s.name, dump.Options{})
		if err != nil {
			return credential.Credential{}, err
		}
	}
	return bearer, nil
}

// login always reaches the gateway since the token is needed even when the
// login snapshot exists. A rejected login is never persisted.
func (c Crawler) login(ctx context.Context, dumper dump.Dumper) (credential.Credential, error) {
	res, err := dumper.Dump(
		ctx,
		dump.Post("/api/login", nil, loginRequest{User: c.config.User, Password: c.config.Password}),
		assets.Single("login"),
		dump.Options{Refetch: true, Expect: http.StatusOK},
	)
	if err != nil {
		return credential.Credential{}, err
	}

	object, _ := res.Document.(map[string]any)
	if res.Status != http.StatusOK {
		description, ok := object["description"].(string)
		if !ok {
			description = http.StatusText(res.Status)
		}
		return credential.Credential{}, fmt.Errorf("%w: %s: %s", ErrLogin, c.config.User, description)
	}
	token, ok := object["token"].(string)
	if !ok || token == "" {
		return credential.Credential{}, fmt.Errorf("%w: no token in login response", ErrLogin)
	}
	c.env.Tel.ReportDebug("authenticated on gateway", c.config.User)
	return credential.Bearer(token), nil
}
