package ieee

import "survey-collector/logger"

// IsRecoverable reports whether err only affects a single article.
// Catalog and issue level failures abort the run.
func IsRecoverable(err error) bool {
	switch logger.TypeOf(err) {
	case logger.ErrorTypeArticleFetch,
		logger.ErrorTypeMetadataMissing,
		logger.ErrorTypeMetadataParse,
		logger.ErrorTypeMissingTitle,
		logger.ErrorTypeMissingKeywords,
		logger.ErrorTypeMissingAbstract,
		logger.ErrorTypeMissingDate,
		logger.ErrorTypeInvalidDate:
		return true
	default:
		return false
	}
}
