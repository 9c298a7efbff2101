package handler

import (
	"errors"
	"net/http"
	"reflect"

	"retailcore/internal/apierror"
	"retailcore/internal/infra"
	"retailcore/internal/middleware"
	"retailcore/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

func init() {
	// Register decimal.Decimal as a numeric type so that validator tags like
	// min=0, gt=0, required work without panicking ("Bad field type decimal.Decimal").
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if v, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := v.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
}

// bindAndValidate binds JSON body and runs go-playground/validator tags.
// Returns false and writes the error response if validation fails; the
// caller should return immediately without writing another response.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeBadRequest, "invalid JSON: "+err.Error()))
		return false
	}
	return runValidation(c, req)
}

// bindQuery is bindAndValidate for query-string parameters.
func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeBadRequest, "invalid query: "+err.Error()))
		return false
	}
	return runValidation(c, req)
}

func runValidation(c *gin.Context, req interface{}) bool {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeBadRequest, err.Error()))
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
		return false
	}
	return true
}

// pathID parses the :id route parameter, writing a 400 when malformed.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeBadRequest, "invalid id"))
		return uuid.Nil, false
	}
	return id, true
}

// caller returns the verified claims. Routes using it sit behind JWTAuth, so
// a missing value is a wiring bug and answers 401.
func caller(c *gin.Context) (*middleware.JWTClaims, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, apierror.New(apierror.CodeUnauthorized, "authentication required"))
		return nil, false
	}
	return claims, true
}

// writeError maps service errors to HTTP. Business errors are expected
// outcomes and answer 4xx without an error log; anything else is attached
// to the context for ErrorHandler to log once and answers a generic 500.
func writeError(c *gin.Context, err error) {
	var (
		verr  *service.ValidationError
		stock *service.InsufficientStockError
		minim *service.MinimumOrderError
		trans *service.InvalidTransitionError
	)
	switch {
	case errors.As(err, &verr):
		fields := map[string]string{verr.Field: verr.Message}
		c.JSON(http.StatusUnprocessableEntity, apierror.NewValidation(fields))
	case errors.As(err, &stock):
		c.JSON(http.StatusConflict, apierror.New(stock.Code(), stock.Error()).WithMeta(gin.H{
			"product_id": stock.ProductID,
			"available":  stock.Available,
			"requested":  stock.Requested,
		}))
	case errors.As(err, &minim):
		c.JSON(http.StatusUnprocessableEntity, apierror.New(minim.Code(), minim.Error()).WithMeta(gin.H{
			"minimum":  minim.Minimum,
			"subtotal": minim.Subtotal,
		}))
	case errors.As(err, &trans):
		c.JSON(http.StatusConflict, apierror.New(trans.Code(), trans.Error()).WithMeta(gin.H{
			"from":    trans.From,
			"to":      trans.To,
			"allowed": trans.Allowed,
		}))
	case errors.Is(err, service.ErrOrderNotFound), errors.Is(err, service.ErrWarehouseNotFound):
		writeBusiness(c, http.StatusNotFound, err)
	case errors.Is(err, service.ErrNotOrderOwner):
		writeBusiness(c, http.StatusForbidden, err)
	case errors.Is(err, service.ErrCancellationNotAllowed):
		writeBusiness(c, http.StatusConflict, err)
	case errors.Is(err, service.ErrInvalidCursor):
		writeBusiness(c, http.StatusBadRequest, err)
	case errors.Is(err, service.ErrProductUnavailable):
		writeBusiness(c, http.StatusUnprocessableEntity, err)
	case errors.Is(err, infra.ErrDatabaseUnavailable):
		_ = c.Error(err)
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, apierror.New(apierror.CodeUnavailable, "service temporarily unavailable"))
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, apierror.New(apierror.CodeInternal, "internal server error"))
	}
}

func writeBusiness(c *gin.Context, status int, err error) {
	code := apierror.CodeBadRequest
	if be, ok := service.AsBusinessError(err); ok {
		code = be.Code()
	}
	c.JSON(status, apierror.New(code, err.Error()))
}
