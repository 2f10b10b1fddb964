package detections

const (
	MsgModelUnavailable = "The AI detection model could not be loaded. Please check server logs."

	MsgNoFileOrURL = "No file or URL provided"

	MsgNoVideo = "No video file provided"

	MsgNoText = "No text provided"

	MsgTextTooLong = "Text exceeds the maximum supported length"

	MsgVideoUnopenable = "Could not open video"

	MsgImageDetails = "Model identified as %s with %.1f%% confidence."

	MsgTextDetails = "Analysis based on %d words."

	MsgVideoDetails = "%d of %d sampled frames flagged as AI-generated."

	MsgProcessingFailed = "Processing failed: %s"
)
