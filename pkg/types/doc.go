// Package types contains the shared statistics and snapshot types
// exchanged between the optimizer components and external consumers.
package types
