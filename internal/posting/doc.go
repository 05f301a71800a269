// Package posting implements the posting-list representations and their
// fixed-width binary codecs: the two-field (id, aux) pair layout used by the
// triple argument index, and the N-field columnar List stored one column per
// key by the inverted index. No variable-length integer encoding is used;
// compactness comes from delta-encoding the primary id column.
package posting
