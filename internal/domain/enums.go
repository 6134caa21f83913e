package domain

// Medium is the physical/digital format a book is delivered in. Two pools
// are never clustered across mediums: the audiobook and the ebook of the
// same title are distinct Works.
type Medium string

// Known mediums.
const (
	MediumBook       Medium = "book"
	MediumAudio      Medium = "audio"
	MediumPeriodical Medium = "periodical"
	MediumVideo      Medium = "video"
)

// Valid reports whether m is a registered medium.
func (m Medium) Valid() bool {
	switch m {
	case MediumBook, MediumAudio, MediumPeriodical, MediumVideo:
		return true
	}
	return false
}

// RightsStatus captures the license under which a source distributes a book.
type RightsStatus string

// Known rights statuses.
const (
	RightsPublicDomainUSA RightsStatus = "public-domain-usa"
	RightsCC0             RightsStatus = "cc0"
	RightsCCBY            RightsStatus = "cc-by"
	RightsCCBYNC          RightsStatus = "cc-by-nc"
	RightsInCopyright     RightsStatus = "in-copyright"
	RightsUnknown         RightsStatus = "unknown"
)

// OpenAccess reports whether this rights status allows unrestricted lending.
func (r RightsStatus) OpenAccess() bool {
	switch r {
	case RightsPublicDomainUSA, RightsCC0, RightsCCBY, RightsCCBYNC:
		return true
	}
	return false
}

// Role describes how a contributor relates to an edition.
type Role string

// Known contributor roles.
const (
	RoleAuthor      Role = "author"
	RoleEditor      Role = "editor"
	RoleNarrator    Role = "narrator"
	RoleTranslator  Role = "translator"
	RoleIllustrator Role = "illustrator"
	RoleUnknown     Role = "unknown"
)

// Primary reports whether this role makes the contributor part of the
// primary authorship string used for fingerprinting.
func (r Role) Primary() bool {
	return r == RoleAuthor
}
