package httpgin

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/kirinyoku/cinetix/internal/domain"
)

var registerOnce sync.Once

// registerValidators adds the custom binding tags to gin's validator.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("ticketstatus", validTicketStatus)
	})
}

// validTicketStatus accepts the statuses an administrator may set.
func validTicketStatus(fl validator.FieldLevel) bool {
	st, ok := domain.ParseTicketStatus(fl.Field().String())
	return ok && domain.OverrideAllowed(st)
}
