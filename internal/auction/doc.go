// Package auction defines the types shared by the case resolution pipeline:
// case keys, fetch outcomes, extracted records, error codes and the result
// contract consumed by the API layer.
package auction
