/*
Package objstore implements an asynchronous object store on top of a key-value
store (Bolt, or memory for tests), and a small access layer over it.

We implement:

1. Databases, named and versioned, opened through an Engine. Schema changes
happen only while a database is being upgraded to a higher version.

2. Object stores, collections of MsgPack documents keyed either by a key path
inside the document or by an explicit key.

3. Indices, unique or not, over a key path of the stored documents.

4. Requests and cursors. Every operation yields a Request whose continuations
run on the engine's single loop goroutine, exactly once.

5. The Layer, which runs one-shot reads and writes against whatever database a
HandleSource currently holds, with every acquisition step reported through the
boundary package.

# Technical Details

**Buckets.**
Each store is a root bucket named “store:<name>” holding a “_state” document
and nested buckets: “data” for the records and “index:<name>” per index.
The database version lives in the “_meta” bucket.

**Table states.**
The state document lists the store's key path and index definitions. It is
loaded when a database is first opened and rewritten by schema changes.

## Binary encoding

**Key encoding.**
A key is a kind tag (number, date, string, binary, in that order) followed by
an encoding that sorts bytewise like the key itself. Numbers are float64 with
the sign bit flipped (and all bits flipped for negatives), so integer keys
beyond ±2^53 are rejected rather than collide. Dates are Unix seconds with the
sign bit flipped followed by 4 bytes of nanoseconds. Strings and binaries
escape 00 as 00 FF and end with 00 00, which makes every encoded key
prefix-free.

**Index rows.**
A unique index maps the encoded index key to the encoded primary key.
A non-unique index appends the encoded primary key to the row key, so equal
index keys are ordered by primary key.

**Values.**
MsgPack with sorted map keys. Struct fields use `msgpack` tags, falling back
to `json` tags.
*/
package objstore
