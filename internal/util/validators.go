package util

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	pincodePattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	phonePattern   = regexp.MustCompile(`^\+?[0-9]{10,13}$`)
)

// IsValidPincode 印度邮政编码（6 位，首位非 0）
func IsValidPincode(pincode string) bool {
	return pincodePattern.MatchString(pincode)
}

// IsValidPhone 手机号，可带国家码
func IsValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ValidatePincode 验证印度邮政编码
func ValidatePincode(fl validator.FieldLevel) bool {
	return IsValidPincode(fl.Field().String())
}

// ValidatePhone 验证手机号
func ValidatePhone(fl validator.FieldLevel) bool {
	return IsValidPhone(fl.Field().String())
}

// RegisterValidators 注册自定义校验规则
func RegisterValidators(v *validator.Validate) {
	v.RegisterValidation("pincode", ValidatePincode)
	v.RegisterValidation("phone", ValidatePhone)
}
