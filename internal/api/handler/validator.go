package handler

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/vibeup/internal/service"
	"github.com/d60-Lab/vibeup/internal/vibe"
)

var registerOnce sync.Once

// RegisterValidators 向 gin 的校验引擎注册 polarity / currency 规则
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("polarity", func(fl validator.FieldLevel) bool {
			return vibe.Polarity(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
			return service.ValidCurrency(strings.ToUpper(fl.Field().String()))
		})
	})
}
