package detections

const (
	InputWidth  = 224
	InputHeight = 224

	// ImageMean and ImageStd match the ViT feature extractor the image model was exported with.
	ImageMean = 0.5
	ImageStd  = 0.5

	VerdictThreshold = 0.5
	HighRiskScore    = 0.8
	MediumRiskScore  = 0.5

	// UncertainScore is reported when a result had to be degraded.
	UncertainScore = 0.5

	MaxTokens          = 512
	LongTextWords      = 50
	LongTextBonus      = 0.1
	TextScoreNormalize = 1.1
	MaxTextLength      = 100000

	FrameStride    = 30
	MaxVideoFrames = 11

	RetryAttempts = 3
	RetryDelayMs  = 100
)

const (
	LabelAIGenerated  = "AI-Generated"
	LabelReal         = "Real"
	LabelHumanWritten = "Human-Written"
	LabelError        = "Error"
	LabelModelError   = "Model Error"

	RiskHigh   = "HIGH"
	RiskMedium = "MEDIUM"
	RiskLow    = "LOW"
)
