package denstore

import (
	"encoding/json"

	"github.com/hari2309s/meerkat-sub001/internal/crdt"
	"github.com/hari2309s/meerkat-sub001/internal/nskeys"
)

// MapView binds a document to one map namespace so callers read and name the
// namespace once, at the accessor, instead of threading namespace strings
// through every call.
type MapView struct {
	doc *crdt.Doc
	ns  string
}

func (v MapView) Namespace() string { return v.ns }

func (v MapView) Get(key string, out any) (bool, error) {
	return v.doc.MapGet(v.ns, key, out)
}

func (v MapView) Keys() []string { return v.doc.MapKeys(v.ns) }

func (v MapView) Snapshot() map[string]json.RawMessage {
	return v.doc.MapSnapshot(v.ns)
}

// ListView binds a document to one list namespace.
type ListView struct {
	doc *crdt.Doc
	ns  string
}

func (v ListView) Namespace() string { return v.ns }

func (v ListView) Slice() []crdt.Elem { return v.doc.ListSlice(v.ns) }

func (v ListView) Len() int { return v.doc.ListLen(v.ns) }

// Typed accessors for the private document's namespaces.

func (d *Den) Notes() MapView    { return MapView{doc: d.Private, ns: NamespaceNotes} }
func (d *Den) Settings() MapView { return MapView{doc: d.Private, ns: NamespaceSettings} }
func (d *Den) VoiceMemos() ListView {
	return ListView{doc: d.Private, ns: NamespaceVoiceMemos}
}
func (d *Den) MoodJournal() ListView {
	return ListView{doc: d.Private, ns: NamespaceMoodJournal}
}

// Typed accessors for the shared document's namespaces.

func (d *Den) SharedNotes() MapView {
	return MapView{doc: d.Shared, ns: nskeys.NamespaceSharedNotes}
}
func (d *Den) Presence() MapView {
	return MapView{doc: d.Shared, ns: nskeys.NamespacePresence}
}
func (d *Den) VoiceThread() ListView {
	return ListView{doc: d.Shared, ns: nskeys.NamespaceVoiceThread}
}
func (d *Den) Dropbox() ListView {
	return ListView{doc: d.Shared, ns: nskeys.NamespaceDropbox}
}
