package domain

// DataSource identifies where a record came from. The set is closed: sources
// are registered here rather than compared by free-form strings, so that a
// typo in an import job fails loudly instead of silently creating a new
// source.
type DataSource string

// Known data sources.
const (
	SourceGutenberg        DataSource = "gutenberg"
	SourceFeedbooks        DataSource = "feedbooks"
	SourcePlympton         DataSource = "plympton"
	SourceStandardEbooks   DataSource = "standard-ebooks"
	SourceUnglueIt         DataSource = "unglue-it"
	SourceOAContentServer  DataSource = "oa-content-server"
	SourceMetadataWrangler DataSource = "metadata-wrangler"
	SourceOverdrive        DataSource = "overdrive"
	SourceBibliotheca      DataSource = "bibliotheca"
	SourceAxis360          DataSource = "axis-360"
	SourceNoveList         DataSource = "novelist"
	SourceAmazon           DataSource = "amazon"
	SourceNYT              DataSource = "nyt"
	SourceLibraryStaff     DataSource = "library-staff"
	SourceManual           DataSource = "manual"
)

// licenseSources are sources that distribute actual books, as opposed to
// pure metadata services. Only these may own a LicensePool.
var licenseSources = map[DataSource]bool{
	SourceGutenberg:       true,
	SourceFeedbooks:       true,
	SourcePlympton:        true,
	SourceStandardEbooks:  true,
	SourceUnglueIt:        true,
	SourceOAContentServer: true,
	SourceOverdrive:       true,
	SourceBibliotheca:     true,
	SourceAxis360:         true,
}

// openAccessSources distribute books under open licenses.
var openAccessSources = map[DataSource]bool{
	SourceGutenberg:       true,
	SourceFeedbooks:       true,
	SourcePlympton:        true,
	SourceStandardEbooks:  true,
	SourceUnglueIt:        true,
	SourceOAContentServer: true,
}

// Valid reports whether s is a registered data source.
func (s DataSource) Valid() bool {
	switch s {
	case SourceGutenberg, SourceFeedbooks, SourcePlympton, SourceStandardEbooks,
		SourceUnglueIt, SourceOAContentServer, SourceMetadataWrangler,
		SourceOverdrive, SourceBibliotheca, SourceAxis360, SourceNoveList,
		SourceAmazon, SourceNYT, SourceLibraryStaff, SourceManual:
		return true
	}
	return false
}

// OffersLicenses reports whether this source distributes books.
func (s DataSource) OffersLicenses() bool {
	return licenseSources[s]
}

// OpenAccess reports whether this source distributes open-access books.
func (s DataSource) OpenAccess() bool {
	return openAccessSources[s]
}

func (s DataSource) String() string {
	return string(s)
}
