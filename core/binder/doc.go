// Package binder decodes HTTP request bodies into Go values.
//
//	var req redeemRequest
//	if err := binder.JSON()(ctx.Request(), &req); err != nil {
//		return response.Error(response.ErrBadRequest.WithError(err))
//	}
package binder
