// Package msglib defines the vocabulary shared by every component of the
// library-selection control plane: library identities and capabilities,
// application and remote-path keys, selection roles, and the structured
// error type.
//
// Library identities are content-derived CIDv1 values (raw + sha2-256 of the
// library's address bytes). They are comparable with == and usable as map
// keys. The zero LibraryID is reserved to mean "the default library" in change
// events and is never registered.
package msglib
