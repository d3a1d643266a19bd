package vault

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// FormatVersion is the metadata document format understood by this build.
// Load rejects documents with any other version.
const FormatVersion = 1

// KeyPolicy selects the class of key material the encryption oracle binds a
// credential to.
type KeyPolicy string

const (
	// KeyPolicyHost encrypts with the host-resident key only.
	KeyPolicyHost KeyPolicy = "host"

	// KeyPolicyTPM2 encrypts with the hardware TPM2 key only.
	KeyPolicyTPM2 KeyPolicy = "tpm2"

	// KeyPolicyHostTPM2 encrypts with both keys combined. Decryption requires
	// the same host and the same TPM2 device.
	KeyPolicyHostTPM2 KeyPolicy = "host+tpm2"

	// KeyPolicyAuto resolves to host+tpm2 when a TPM2 device is available and
	// to host otherwise. It is resolved before any oracle call and is never
	// persisted.
	KeyPolicyAuto KeyPolicy = "auto"
)

// Valid reports whether k is one of the recognized key policies.
func (k KeyPolicy) Valid() bool {
	switch k {
	case KeyPolicyHost, KeyPolicyTPM2, KeyPolicyHostTPM2, KeyPolicyAuto:
		return true
	}
	return false
}

// Resolve maps the auto policy to a concrete one based on TPM2 availability.
// Concrete policies are returned unchanged.
func (k KeyPolicy) Resolve(hasTPM2 bool) KeyPolicy {
	if k != KeyPolicyAuto {
		return k
	}
	if hasTPM2 {
		return KeyPolicyHostTPM2
	}
	return KeyPolicyHost
}

// CredentialStatus tracks where a credential is in the rotation lifecycle.
type CredentialStatus string

const (
	// StatusActive is the normal state: one current blob, no retained fallback.
	StatusActive CredentialStatus = "active"

	// StatusAwaitingRevocation is set by rotation: a new blob is installed and
	// the previous blob is retained as a fallback until an explicit revoke.
	StatusAwaitingRevocation CredentialStatus = "awaiting-revocation"
)

// Valid reports whether s is a recognized credential status.
func (s CredentialStatus) Valid() bool {
	return s == StatusActive || s == StatusAwaitingRevocation
}

// Credential is the metadata for one named secret. The plaintext is never
// stored; BlobRef identifies the encrypted artifact in the credstore.
type Credential struct {
	// Name uniquely identifies the credential within the vault.
	Name string `json:"name"`

	// Description is free-form operator text.
	Description string `json:"description,omitempty"`

	// Tags are free-form labels used for filtering.
	Tags []string `json:"tags,omitempty"`

	// KeyPolicy is the concrete policy the blob was encrypted under.
	KeyPolicy KeyPolicy `json:"key_policy"`

	// Status is active or awaiting-revocation.
	Status CredentialStatus `json:"status"`

	// BlobRef is the opaque reference to the current encrypted blob.
	BlobRef string `json:"blob_ref"`

	// PrevBlobRef references the retained pre-rotation blob. Set if and only
	// if Status is awaiting-revocation.
	PrevBlobRef string `json:"prev_blob_ref,omitempty"`

	// CreatedAt is when the credential was first created.
	CreatedAt time.Time `json:"created_at"`

	// RotatedAt is when the credential was last rotated, if ever.
	RotatedAt *time.Time `json:"rotated_at,omitempty"`

	// Services lists the services bound to this credential, sorted. It is
	// kept consistent with Document.Bindings on every mutation.
	Services []string `json:"services,omitempty"`
}

// HasTag reports whether the credential carries the given tag.
func (c *Credential) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ConsumedBy reports whether the named service is bound to this credential.
func (c *Credential) ConsumedBy(service string) bool {
	for _, s := range c.Services {
		if s == service {
			return true
		}
	}
	return false
}

// BindingEntry is one credential exposure within a service binding.
type BindingEntry struct {
	// Credential names the bound credential.
	Credential string `json:"credential"`

	// EnvVar, when set, is the environment variable the service manager
	// points at the materialized credential path. Unique per service.
	EnvVar string `json:"env_var,omitempty"`
}

// Document is the complete metadata snapshot persisted as vault.json.
// Mutating methods operate in memory; nothing is durable until Store.Commit.
type Document struct {
	// Version is the metadata format version.
	Version int `json:"version"`

	// Credentials holds every credential, unordered on disk but listed
	// sorted by name through List.
	Credentials []Credential `json:"credentials"`

	// Bindings maps a service name to its ordered credential exposures.
	Bindings map[string][]BindingEntry `json:"bindings"`
}

// NewDocument returns an empty document at the current format version.
func NewDocument() *Document {
	return &Document{
		Version:     FormatVersion,
		Credentials: []Credential{},
		Bindings:    map[string][]BindingEntry{},
	}
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	// Service keeps only credentials bound to this service.
	Service string

	// Tag keeps only credentials carrying this tag.
	Tag string

	// Query keeps only credentials whose name or description contains the
	// substring, case-insensitively.
	Query string
}

// FindByName returns the credential with the given name, or nil.
func (d *Document) FindByName(name string) *Credential {
	for i := range d.Credentials {
		if d.Credentials[i].Name == name {
			return &d.Credentials[i]
		}
	}
	return nil
}

// List returns the credentials matching the filter, sorted by name.
func (d *Document) List(f Filter) []Credential {
	var out []Credential
	q := strings.ToLower(f.Query)
	for _, c := range d.Credentials {
		if f.Service != "" && !c.ConsumedBy(f.Service) {
			continue
		}
		if f.Tag != "" && !c.HasTag(f.Tag) {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(c.Name), q) &&
			!strings.Contains(strings.ToLower(c.Description), q) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// UpsertCredential inserts the credential or replaces the existing one with
// the same name.
func (d *Document) UpsertCredential(c Credential) {
	for i := range d.Credentials {
		if d.Credentials[i].Name == c.Name {
			d.Credentials[i] = c
			return
		}
	}
	d.Credentials = append(d.Credentials, c)
}

// RemoveCredential deletes the named credential and every binding entry that
// references it. It reports whether the credential existed.
func (d *Document) RemoveCredential(name string) bool {
	idx := -1
	for i := range d.Credentials {
		if d.Credentials[i].Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	d.Credentials = append(d.Credentials[:idx], d.Credentials[idx+1:]...)
	for service, entries := range d.Bindings {
		kept := entries[:0]
		for _, e := range entries {
			if e.Credential != name {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(d.Bindings, service)
		} else {
			d.Bindings[service] = kept
		}
	}
	return true
}

// BindService adds an exposure of the named credential to the service.
// Rebinding the same credential updates its env var in place.
func (d *Document) BindService(service, credential, envVar string) error {
	cred := d.FindByName(credential)
	if cred == nil {
		return NewNotFound(credential)
	}
	if envVar != "" {
		for _, e := range d.Bindings[service] {
			if e.EnvVar == envVar && e.Credential != credential {
				return NewValidationErrorf("env var %s already used by credential %q in service %s", envVar, e.Credential, service)
			}
		}
	}
	if d.Bindings == nil {
		d.Bindings = map[string][]BindingEntry{}
	}
	updated := false
	for i, e := range d.Bindings[service] {
		if e.Credential == credential {
			d.Bindings[service][i].EnvVar = envVar
			updated = true
			break
		}
	}
	if !updated {
		d.Bindings[service] = append(d.Bindings[service], BindingEntry{Credential: credential, EnvVar: envVar})
	}
	if !cred.ConsumedBy(service) {
		cred.Services = append(cred.Services, service)
		sort.Strings(cred.Services)
	}
	return nil
}

// UnbindService removes the credential's exposure from the service. It
// reports whether a binding existed.
func (d *Document) UnbindService(service, credential string) bool {
	entries, ok := d.Bindings[service]
	if !ok {
		return false
	}
	found := false
	kept := entries[:0]
	for _, e := range entries {
		if e.Credential == credential {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return false
	}
	if len(kept) == 0 {
		delete(d.Bindings, service)
	} else {
		d.Bindings[service] = kept
	}
	if cred := d.FindByName(credential); cred != nil {
		services := cred.Services[:0]
		for _, s := range cred.Services {
			if s != service {
				services = append(services, s)
			}
		}
		cred.Services = services
	}
	return true
}

// ServiceNames returns every service with at least one binding, sorted.
func (d *Document) ServiceNames() []string {
	names := make([]string, 0, len(d.Bindings))
	for s := range d.Bindings {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := &Document{
		Version:     d.Version,
		Credentials: make([]Credential, len(d.Credentials)),
		Bindings:    make(map[string][]BindingEntry, len(d.Bindings)),
	}
	for i, c := range d.Credentials {
		cc := c
		cc.Tags = append([]string(nil), c.Tags...)
		cc.Services = append([]string(nil), c.Services...)
		if c.RotatedAt != nil {
			t := *c.RotatedAt
			cc.RotatedAt = &t
		}
		out.Credentials[i] = cc
	}
	for s, entries := range d.Bindings {
		out.Bindings[s] = append([]BindingEntry(nil), entries...)
	}
	return out
}

// Validate checks the document's internal consistency. It returns a
// StoreCorrupt error describing the first problem found, or nil.
func (d *Document) Validate() error {
	if d.Version != FormatVersion {
		return NewStoreCorrupt("unsupported metadata format version", nil).
			WithDetail("version", strconv.Itoa(d.Version))
	}
	seen := make(map[string]bool, len(d.Credentials))
	for i := range d.Credentials {
		c := &d.Credentials[i]
		if err := ValidateCredentialName(c.Name); err != nil {
			return NewStoreCorrupt("invalid credential name in store", err)
		}
		if seen[c.Name] {
			return NewStoreCorrupt("duplicate credential name", nil).WithDetail("name", c.Name)
		}
		seen[c.Name] = true
		if !c.KeyPolicy.Valid() || c.KeyPolicy == KeyPolicyAuto {
			return NewStoreCorrupt("invalid key policy", nil).
				WithDetail("name", c.Name).
				WithDetail("key_policy", string(c.KeyPolicy))
		}
		if !c.Status.Valid() {
			return NewStoreCorrupt("invalid credential status", nil).
				WithDetail("name", c.Name).
				WithDetail("status", string(c.Status))
		}
		if c.BlobRef == "" {
			return NewStoreCorrupt("credential has no blob reference", nil).WithDetail("name", c.Name)
		}
		if (c.Status == StatusAwaitingRevocation) != (c.PrevBlobRef != "") {
			return NewStoreCorrupt("rotation state inconsistent with previous blob reference", nil).
				WithDetail("name", c.Name)
		}
	}
	for service, entries := range d.Bindings {
		if err := ValidateServiceName(service); err != nil {
			return NewStoreCorrupt("invalid service name in bindings", err)
		}
		vars := make(map[string]bool, len(entries))
		for _, e := range entries {
			cred := d.FindByName(e.Credential)
			if cred == nil {
				return NewStoreCorrupt("binding references missing credential", nil).
					WithDetail("service", service).
					WithDetail("credential", e.Credential)
			}
			if !cred.ConsumedBy(service) {
				return NewStoreCorrupt("credential service list out of sync with bindings", nil).
					WithDetail("service", service).
					WithDetail("credential", e.Credential)
			}
			if e.EnvVar != "" {
				if err := ValidateEnvVar(e.EnvVar); err != nil {
					return NewStoreCorrupt("invalid env var in binding", err)
				}
				if vars[e.EnvVar] {
					return NewStoreCorrupt("duplicate env var within service binding", nil).
						WithDetail("service", service).
						WithDetail("env_var", e.EnvVar)
				}
				vars[e.EnvVar] = true
			}
		}
	}
	for i := range d.Credentials {
		c := &d.Credentials[i]
		for _, s := range c.Services {
			bound := false
			for _, e := range d.Bindings[s] {
				if e.Credential == c.Name {
					bound = true
					break
				}
			}
			if !bound {
				return NewStoreCorrupt("credential lists a service with no matching binding", nil).
					WithDetail("name", c.Name).
					WithDetail("service", s)
			}
		}
	}
	return nil
}
