package sandbox

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Logging logs one line per request.
func Logging(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			req := c.Request()

			// only metadata, never bodies
			log.Info("http",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("dur", time.Since(start)),
				zap.String("peer", c.RealIP()),
			)
			return nil
		}
	}
}

// Recover turns a handler panic into a 500.
func Recover(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic",
						zap.Any("reason", r),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", c.Request().URL.Path),
					)
					err = echo.NewHTTPError(http.StatusInternalServerError, "internal")
				}
			}()
			return next(c)
		}
	}
}

// Bearer requires "Authorization: Bearer <JWT>" and puts the account into the request context.
func Bearer(auth *AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "No token provided")
			}
			acc, err := auth.Authenticate(tok)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}
			req := c.Request()
			c.SetRequest(req.WithContext(WithAccount(req.Context(), acc)))
			return next(c)
		}
	}
}

func bearerToken(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if len(v) < 7 || !strings.EqualFold(v[:7], "bearer ") {
		return "", false
	}
	t := strings.TrimSpace(v[7:])
	return t, t != ""
}
