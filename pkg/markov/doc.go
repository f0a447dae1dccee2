/*
Package markov provides an in-memory, order-N Markov chain engine for
learning transition frequencies from token sequences and generating new
sequences by weighted random walk.

A Chain is generic over any comparable token type. Sequences are fed with
Feed (or FeedString and FeedFile for text), generated with Generate and
GenerateFromToken, and persisted with Encode/Decode (binary) or
Export/Import (JSON). Start and end of every sequence are marked with
sentinels that can never collide with caller tokens.

Chains are not safe for concurrent use on their own. Generator wraps a text
chain in a reader/writer lock so that many goroutines can generate while
feeds are serialized, and adds a streaming API for token-by-token output.
*/
package markov
