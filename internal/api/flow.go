package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/enftaurus/vidyamitra/pkg/errclass"
	"github.com/enftaurus/vidyamitra/pkg/model"
)

const userKey = "user_id"

// StatusResponse is returned by every round-flow route.
type StatusResponse struct {
	Status    model.StatusMap `json:"status"`
	FlowReset bool            `json:"flow_reset,omitempty"`
}

func requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(UserCookie)
		if err != nil || cookie.Value == "" {
			return errclass.ErrUnauthenticated.WithMessage("User not logged in")
		}
		c.Set(userKey, cookie.Value)
		return next(c)
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(userKey).(string)
	return id
}

func roundParam(c echo.Context) (model.RoundKey, error) {
	return model.ParseRoundKey(c.Param("round"))
}

func GetHealthRoute(s *Server) *echo.Route {
	return s.Router.Root.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

func GetStatusRoute(s *Server) *echo.Route {
	return s.Router.Flow.GET("/status", getStatusHandler(s))
}

func getStatusHandler(s *Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, err := s.Flow.Status(c.Request().Context(), userID(c))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, StatusResponse{Status: st})
	}
}

func PostResetRoute(s *Server) *echo.Route {
	return s.Router.Flow.POST("/reset", postResetHandler(s))
}

func postResetHandler(s *Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		st, err := s.Flow.Reset(c.Request().Context(), userID(c))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, StatusResponse{Status: st})
	}
}

func PostStartRoute(s *Server) *echo.Route {
	return s.Router.Flow.POST("/:round/start", postStartHandler(s))
}

func postStartHandler(s *Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		round, err := roundParam(c)
		if err != nil {
			return err
		}
		st, err := s.Flow.Start(c.Request().Context(), userID(c), round)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, StatusResponse{Status: st})
	}
}

// PostAnswerRoute gates an answer submission: it succeeds only for a round
// that has been started.
func PostAnswerRoute(s *Server) *echo.Route {
	return s.Router.Flow.POST("/:round/answer", postAnswerHandler(s))
}

func postAnswerHandler(s *Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		round, err := roundParam(c)
		if err != nil {
			return err
		}
		st, err := s.Flow.EnsureAnswerAllowed(c.Request().Context(), userID(c), round)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, StatusResponse{Status: st})
	}
}

func PostCompleteRoute(s *Server) *echo.Route {
	return s.Router.Flow.POST("/:round/complete", postCompleteHandler(s))
}

func postCompleteHandler(s *Server) echo.HandlerFunc {
	return func(c echo.Context) error {
		round, err := roundParam(c)
		if err != nil {
			return err
		}
		res, err := s.Flow.Complete(c.Request().Context(), userID(c), round)
		if err != nil {
			return err
		}
		if res.FlowReset {
			s.Log.Info("cycle closed", map[string]any{"user_id": userID(c)})
		}
		return c.JSON(http.StatusOK, StatusResponse{Status: res.Status, FlowReset: res.FlowReset})
	}
}
