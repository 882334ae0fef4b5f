// Package address maps wire-level radio addresses to stable device
// identities and back.
//
// A device owns an ordered list of "on" addresses and "off" addresses; a
// remote may cycle through several equivalent rolling codes per button. The
// resolver also keeps a reference-counted address → state table built from
// every bound device, so devices that happen to share an address value do
// not clobber each other on removal.
//
// While pairing, the resolver exposes a pending device that is not part of
// the table. Unknown addresses resolve to the pending identity when it has
// learned them, and to a fresh identity otherwise.
package address
