package north

import (
	pkgerrors "github.com/kevin07696/subscription-service/pkg/errors"
)

// ResponseCodeInfo describes a North response code
type ResponseCodeInfo struct {
	Code        string
	Display     string
	Description string
	IsApproved  bool
	IsRetriable bool
	Category    pkgerrors.ErrorCategory
}

var responseCodes = map[string]ResponseCodeInfo{
	"00": {Code: "00", Display: "APPROVAL", Description: "Request approved", IsApproved: true},
	"05": {Code: "05", Display: "DECLINE", Description: "Do not honor", Category: pkgerrors.CategoryInvalidRequest},
	"12": {Code: "12", Display: "INVALID TRANS", Description: "Invalid transaction", Category: pkgerrors.CategoryInvalidRequest},
	"51": {Code: "51", Display: "INSUFF FUNDS", Description: "Insufficient funds in account", IsRetriable: true, Category: pkgerrors.CategoryProviderError},
	"54": {Code: "54", Display: "EXP CARD", Description: "Expired card", Category: pkgerrors.CategoryInvalidRequest},
	"91": {Code: "91", Display: "ISSUER UNAVAIL", Description: "Issuer or switch inoperative", IsRetriable: true, Category: pkgerrors.CategoryUnavailable},
	"96": {Code: "96", Display: "SYSTEM ERROR", Description: "System error", IsRetriable: true, Category: pkgerrors.CategoryProviderError},
}

// GetResponseCode looks up a response code; unknown codes are non-retriable declines
func GetResponseCode(code string) ResponseCodeInfo {
	if info, ok := responseCodes[code]; ok {
		return info
	}
	return ResponseCodeInfo{
		Code:        code,
		Display:     "UNKNOWN",
		Description: "Unknown response code",
		Category:    pkgerrors.CategoryInvalidRequest,
	}
}

// Approved reports whether code is empty or an approval
func Approved(code string) bool {
	return code == "" || GetResponseCode(code).IsApproved
}

// ToGatewayError converts a non-approval code to a gateway error
func (r ResponseCodeInfo) ToGatewayError(gatewayMessage string) *pkgerrors.GatewayError {
	ge := pkgerrors.NewGatewayError(pkgerrors.CodeRequestError, r.Description, r.Category, r.IsRetriable)
	if r.IsRetriable {
		ge.Code = pkgerrors.CodeGatewayError
	}
	ge.GatewayMessage = r.Code + " " + gatewayMessage
	return ge
}
