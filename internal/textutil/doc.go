// Package textutil provides text helpers for building library paths: path
// component sanitizing, Unicode normalization and case-folded comparison keys
// for detecting destination collisions on case-insensitive file systems.
package textutil
