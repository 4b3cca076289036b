// Package service is the query and mutation surface of the CRM. Mutations
// report their outcome in a payload and never return an error or panic;
// queries return rows and the typed errors of package model.
package service

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"crmcore/batch"
	"crmcore/model"
	"crmcore/store"
)

// Code classifies a failed mutation.
type Code string

const (
	CodeValidation Code = "validation"
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	CodeInternal   Code = "internal"
)

// Payload is embedded in every mutation result.
type Payload struct {
	Message string   `json:"message"`
	Code    Code     `json:"code,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Success bool     `json:"success"`
}

// CustomerPayload is the result of a customer mutation.
type CustomerPayload struct {
	Customer *model.Customer `json:"customer,omitempty"`
	Payload
}

// BulkCustomersPayload is the result of a bulk customer creation.
type BulkCustomersPayload struct {
	Customers []model.Customer `json:"customers"`
	Payload
}

// ProductPayload is the result of a product mutation.
type ProductPayload struct {
	Product *model.Product `json:"product,omitempty"`
	Payload
}

// ProductsPayload lists the products a replenishment touched.
type ProductsPayload struct {
	Products []model.Product `json:"updatedProducts"`
	Payload
}

// OrderPayload is the result of an order mutation.
type OrderPayload struct {
	Order *model.Order `json:"order,omitempty"`
	Payload
}

// Service wires the store and the batch coordinator behind one surface.
type Service struct {
	store *store.Store
	batch *batch.Coordinator
	log   *zap.Logger
}

// New returns a Service over s. A nil log discards output.
func New(s *store.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: s, batch: batch.New(s, log), log: log.Named("service")}
}

// Store exposes the underlying entity store.
func (s *Service) Store() *store.Store { return s.store }

// codeOf maps an error onto a payload code.
func codeOf(err error) Code {
	switch {
	case errors.Is(err, model.ErrValidation):
		return CodeValidation
	case errors.Is(err, model.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, model.ErrConflict):
		return CodeConflict
	}
	return CodeInternal
}

func ok(msg string) Payload { return Payload{Success: true, Message: msg} }

// fail builds the payload for err. Internal errors are logged and their
// detail is kept out of the message.
func (s *Service) fail(op string, err error) Payload {
	code := codeOf(err)
	if code == CodeInternal {
		s.log.Error(op+" failed", zap.Error(err))
		return Payload{Code: code, Message: op + " failed: internal error", Errors: []string{err.Error()}}
	}
	s.log.Debug(op+" rejected", zap.String("code", string(code)), zap.Error(err))
	return Payload{Code: code, Message: err.Error(), Errors: []string{err.Error()}}
}

// recoverInto turns a panic in a mutation into an internal payload.
func (s *Service) recoverInto(op string, p *Payload) {
	if r := recover(); r != nil {
		s.log.Error(op+" panicked", zap.Any("panic", r), zap.Stack("stack"))
		*p = Payload{Code: CodeInternal, Message: op + " failed: internal error", Errors: []string{fmt.Sprint(r)}}
	}
}
