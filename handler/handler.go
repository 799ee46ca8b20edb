package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"sync"

	"github.com/custody_settlement/apperrors"
	"github.com/custody_settlement/repository"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var statusByKind = map[apperrors.Kind]int{
	apperrors.KindNotAuthorized:     http.StatusForbidden,
	apperrors.KindNotFound:          http.StatusNotFound,
	apperrors.KindInvalidTransition: http.StatusConflict,
	apperrors.KindAlreadyReviewed:   http.StatusConflict,
	apperrors.KindInvalidState:      http.StatusConflict,
	apperrors.KindInvalidAmount:     http.StatusBadRequest,
	apperrors.KindInsufficientFunds: http.StatusUnprocessableEntity,
	apperrors.KindMissingTxHash:     http.StatusBadRequest,
	apperrors.KindNoHotWallet:       http.StatusConflict,
	apperrors.KindExternalService:   http.StatusBadGateway,
	apperrors.KindInvalidInput:      http.StatusBadRequest,
	apperrors.KindInternal:          http.StatusInternalServerError,
}

func statusOf(kind apperrors.Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func errorBody(err error) gin.H {
	kind := apperrors.KindOf(err)
	msg := "internal error"
	var e *apperrors.Error
	if errors.As(err, &e) && kind != apperrors.KindInternal {
		msg = e.Message()
	}
	return gin.H{"error": msg, "code": kind}
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(statusOf(apperrors.KindOf(err)), errorBody(err))
}

// bindJSON maps binding failures onto INVALID_AMOUNT for amount checks and
// INVALID_INPUT otherwise.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		kind := apperrors.KindInvalidInput
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Tag() == "decimal_gt0" {
					kind = apperrors.KindInvalidAmount
				}
			}
		}
		respondError(c, apperrors.Wrap(kind, "decode request", err))
		return false
	}
	return true
}

func listQuery(c *gin.Context) repository.ListQuery {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	return repository.ListQuery{
		UserID:   c.Query("user_id"),
		Currency: c.Query("currency"),
		Status:   c.Query("status"),
		Page:     page,
		Size:     size,
	}
}

func page(c *gin.Context, total int64, records interface{}) {
	c.JSON(http.StatusOK, gin.H{"total": total, "records": records})
}

var registerOnce sync.Once

// RegisterValidators installs decimal support on gin's validator engine.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
			if d, ok := field.Interface().(decimal.Decimal); ok {
				return d.String()
			}
			return nil
		}, decimal.Decimal{})
		_ = v.RegisterValidation("decimal_gt0", func(fl validator.FieldLevel) bool {
			d, err := decimal.NewFromString(fl.Field().String())
			return err == nil && d.IsPositive()
		})
	})
}
