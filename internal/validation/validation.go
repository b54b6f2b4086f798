// Package validation wraps go-playground/validator for the engine
// input DTOs (CreateOrder, Finalize, OpenPause/ClosePause,
// FinishManual), feeding validation failures into the InvalidInput
// error kind (spec §7). Grounded on the teacher's
// internal/validation/validator.go: a struct-tag validator with a
// custom tag registered for this domain's closed enums, and a
// user-friendly message formatter instead of raw validator.FieldError
// text.
package validation

import (
	"fmt"
	"reflect"
	"strings"

	govalidator "github.com/go-playground/validator/v10"

	coreerrors "github.com/abdoElHodaky/cremer-line-core/internal/errors"
	"github.com/abdoElHodaky/cremer-line-core/internal/models"
)

// Validator validates engine input DTOs against struct tags.
type Validator struct {
	v *govalidator.Validate
}

// New creates a Validator with the domain's custom tags registered.
func New() *Validator {
	v := govalidator.New()
	v.RegisterValidation("tipopausa", validateTipoPausa)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{v: v}
}

// Validate checks i against its struct tags and returns an InvalidInput
// CoreError describing every violated field, or nil.
func (val *Validator) Validate(i interface{}) error {
	if err := val.v.Struct(i); err != nil {
		fieldErrs, ok := err.(govalidator.ValidationErrors)
		if !ok {
			return coreerrors.Wrap(err, coreerrors.InvalidInput, "validation failed")
		}
		var messages []string
		for _, fe := range fieldErrs {
			messages = append(messages, formatFieldError(fe))
		}
		return coreerrors.New(coreerrors.InvalidInput, strings.Join(messages, "; "))
	}
	return nil
}

func formatFieldError(fe govalidator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "tipopausa":
		return fmt.Sprintf("%s is not a recognized pause tipo", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

// validateTipoPausa checks that a models.TipoPausa (or *models.TipoPausa,
// via pointer dereference by validator's dive) belongs to the closed set
// named in spec §6.
func validateTipoPausa(fl govalidator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return true
		}
		field = field.Elem()
	}
	tipo := models.TipoPausa(field.String())
	switch tipo {
	case models.TipoIncidenciaMaquinaContadora,
		models.TipoIncidenciaMaquinaPesadora,
		models.TipoIncidenciaMaquinaEtiquetadora,
		models.TipoIncidenciaMaquinaRepercap,
		models.TipoIncidenciaMaquinaTaponadora,
		models.TipoIncidenciaMaquinaPosicionadora,
		models.TipoIncidenciaMaquinaEnvasadora,
		models.TipoIncidenciaMaquinaOtros,
		models.TipoFaltaMaterial,
		models.TipoMaterialDefectuoso,
		models.TipoMantenimientoEnProceso,
		models.TipoLimpiezaEnProceso,
		models.TipoParadaCalidad,
		models.TipoAveriaPonderal,
		models.TipoAveriaEtiqueta,
		models.TipoCambioTurno,
		models.TipoFabricacionParcial,
		models.TipoParada:
		return true
	default:
		return false
	}
}
