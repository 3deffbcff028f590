// Package pine defines the wire types exchanged with the Pine build/eval service
// and the small set of expression helpers the client needs.
//
// Pine expressions are pipe-delimited stages such as "users | where: id = 1 | orders".
// The client never parses them. It only trims, prettifies and swaps the final stage.
package pine
