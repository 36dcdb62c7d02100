package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var Module = fx.Module("health",
	fx.Provide(New),
	fx.Invoke(Register),
)

const probeTimeout = 2 * time.Second

type Dependency struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type Report struct {
	Status string       `json:"status"`
	Deps   []Dependency `json:"deps,omitempty"`
}

type probe struct {
	name  string
	check func(ctx context.Context) error
}

// Checker reports on the stores the payouts API cannot serve without.
type Checker struct {
	probes []probe
}

type Params struct {
	fx.In
	DB    *gorm.DB      `optional:"true"`
	Redis *redis.Client `optional:"true"`
	Queue *asynq.Client `optional:"true"`
}

func New(p Params) *Checker {
	c := &Checker{}
	if p.DB != nil {
		c.probes = append(c.probes, probe{name: p.DB.Name(), check: func(ctx context.Context) error {
			sqlDB, err := p.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}})
	}
	if p.Redis != nil {
		c.probes = append(c.probes, probe{name: "redis", check: func(ctx context.Context) error {
			return p.Redis.Ping(ctx).Err()
		}})
	}
	if p.Queue != nil {
		c.probes = append(c.probes, probe{name: "task_queue", check: func(context.Context) error {
			return p.Queue.Ping()
		}})
	}
	return c
}

func Register(r *gin.Engine, c *Checker) {
	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, &Report{Status: "healthy"})
	})
	r.GET("/readyz", c.Readiness)
}

// Check runs every probe concurrently and reports per dependency.
func (c *Checker) Check(ctx context.Context) *Report {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	deps := make([]Dependency, len(c.probes))
	var g errgroup.Group
	for i, p := range c.probes {
		g.Go(func() error {
			deps[i] = Dependency{Name: p.name, Status: "healthy"}
			if err := p.check(ctx); err != nil {
				deps[i].Status, deps[i].Message = "unhealthy", err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	out := &Report{Status: "healthy", Deps: deps}
	for _, d := range deps {
		if d.Status != "healthy" {
			out.Status = "unhealthy"
		}
	}
	return out
}

func (c *Checker) Readiness(ctx *gin.Context) {
	report := c.Check(ctx.Request.Context())
	code := http.StatusOK
	if report.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	ctx.JSON(code, report)
}
