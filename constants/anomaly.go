package constants

// InconsistencyType names a cross-document conflict.
type InconsistencyType string

const (
	NameMismatch          InconsistencyType = "NAME_MISMATCH"
	AddressMismatch       InconsistencyType = "ADDRESS_MISMATCH"
	IDNumberMismatch      InconsistencyType = "ID_NUMBER_MISMATCH"
	BusinessInfoConflict  InconsistencyType = "BUSINESS_INFO_CONFLICT"
	AmountMismatch        InconsistencyType = "AMOUNT_MISMATCH"
	DateMismatch          InconsistencyType = "DATE_MISMATCH"
	MissingCrossReference InconsistencyType = "MISSING_CROSS_REFERENCE"
)

// ManipulationType names a forensic indicator raised on a single document.
type ManipulationType string

const (
	MetadataDateInconsistency ManipulationType = "METADATA_DATE_INCONSISTENCY"
	EditingSoftware           ManipulationType = "EDITING_SOFTWARE"
	FontInconsistency         ManipulationType = "FONT_INCONSISTENCY"
	ConfidenceVariance        ManipulationType = "CONFIDENCE_VARIANCE"
	CompressionArtifacts      ManipulationType = "COMPRESSION_ARTIFACTS"
)

// Auto-resolution heuristic for obvious noise.
const (
	AutoResolveMaxConfidence = 0.6
	AutoResolveNote          = "Auto-resolved as false positive: low severity finding with confidence below 0.60"
)
