package lsp

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"

	pferrors "pfls/internal/errors"
)

// rpcErrorFor maps an error to the JSON-RPC error sent to the client.
func rpcErrorFor(err error) *RPCError {
	if err == nil {
		return nil
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	if errors.Is(err, context.Canceled) {
		return &RPCError{Code: RequestCancelled, Message: "request cancelled"}
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return &RPCError{Code: InvalidParams, Message: validationMessage(verrs)}
	}

	var pe *pferrors.PfError
	if !errors.As(err, &pe) {
		return &RPCError{Code: InternalError, Message: err.Error()}
	}

	data := map[string]any{"code": string(pe.Code)}
	if pe.Details != nil {
		data["details"] = pe.Details
	}
	switch pe.Code {
	case pferrors.InvalidParameter, pferrors.DocumentNotFound, pferrors.SeedNotFound, pferrors.ConfigInvalid:
		return &RPCError{Code: InvalidParams, Message: pe.Message, Data: data}
	case pferrors.Cancelled:
		return &RPCError{Code: RequestCancelled, Message: pe.Message, Data: data}
	case pferrors.StaleResult:
		return &RPCError{Code: ContentModified, Message: pe.Message, Data: data}
	default:
		return &RPCError{Code: InternalError, Message: pe.Message, Data: data}
	}
}

func validationMessage(verrs validator.ValidationErrors) string {
	if len(verrs) == 0 {
		return "invalid params"
	}
	fe := verrs[0]
	return "invalid params: " + fe.Namespace() + " failed " + fe.Tag() + " validation"
}

func invalidParams(msg string) *RPCError {
	return &RPCError{Code: InvalidParams, Message: msg}
}
