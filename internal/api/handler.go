package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"caex-inspector-backend/internal/answer"
	"caex-inspector-backend/internal/apperr"
	"caex-inspector-backend/internal/carryforward"
	"caex-inspector-backend/internal/fleet"
	"caex-inspector-backend/internal/gate"
	"caex-inspector-backend/internal/lifecycle"
	"caex-inspector-backend/internal/model"
	"caex-inspector-backend/internal/report"
	"caex-inspector-backend/internal/store"
	"caex-inspector-backend/internal/watch"
)

// Services are the domain collaborators the handlers call into.
type Services struct {
	Store     store.Store
	Fleet     *fleet.Service
	Lifecycle *lifecycle.Manager
	Answers   *answer.Service
	Gate      *gate.Gate
	Carry     *carryforward.Resolver
	Reports   *report.Writer
	Hub       *watch.Hub
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	Services
	webpush  *webpush.Options
	upgrader ws.Upgrader
	log      *logrus.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc Services, webpushOptions *webpush.Options, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Services: svc,
		webpush:  webpushOptions,
		upgrader: ws.Upgrader{CheckOrigin: originAllowed(nil)},
		log:      log,
	}
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindNotFound:     http.StatusNotFound,
	apperr.KindInvalidState: http.StatusConflict,
	apperr.KindPrecondition: http.StatusPreconditionFailed,
	apperr.KindValidation:   http.StatusUnprocessableEntity,
}

// fail renders err as a Status envelope. Errors without a domain kind are
// logged and reported as 500.
func (h *Handler) fail(c *gin.Context, err error) {
	code, ok := statusByKind[apperr.KindOf(err)]
	if !ok {
		code = http.StatusInternalServerError
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}
	c.JSON(code, apperr.Failure(err))
}

func (h *Handler) badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, apperr.Status{Status: "error", Kind: apperr.KindValidation, Message: "invalid request"})
}

func (h *Handler) ok(c *gin.Context, code int, id int64, message string) {
	c.JSON(code, apperr.Success(id, message))
}

// idParam parses a positive path id. It writes the 400 itself.
func (h *Handler) idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c)
		return 0, false
	}
	return id, true
}

func queryInt64(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	return v, err == nil && v >= 0
}

// modelParam reads an equipment model from the query. Empty means every model.
func modelParam(c *gin.Context) (model.EquipmentModel, bool) {
	raw := strings.ToUpper(strings.TrimSpace(c.Query("model")))
	if raw == "" {
		return model.ModelAll, true
	}
	m := model.EquipmentModel(raw)
	return m, m == model.ModelAll || m.IsKnown()
}

func answerStates(raw string) []model.AnswerState {
	if raw == "" {
		return nil
	}
	var out []model.AnswerState
	for _, s := range strings.Split(raw, ",") {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, model.AnswerState(s))
		}
	}
	return out
}
