// Package types defines the gateway's wire-level types: the error envelope
// returned for all gateway-originated failures and its type/code constants.
//
// The envelope follows the OpenAI error shape (error.message/type/param/code)
// so existing SDKs surface gateway errors cleanly, with one extension: a
// details object on budget_exceeded carrying the budget arithmetic.
package types
