package envvar

const (
	// SynbenchEnv is the environment variable used to determine the environment
	SynbenchEnv = "SYNBENCH_ENV"

	// SynbenchConfigPath overrides the default configuration file location
	SynbenchConfigPath = "SYNBENCH_CONFIG"

	// SynbenchModelsPath overrides storage.models_dir
	SynbenchModelsPath = "SYNBENCH_MODELS_PATH"

	// SynbenchImagesPath overrides storage.images_dir
	SynbenchImagesPath = "SYNBENCH_IMAGES_PATH"

	// SynbenchORTLibrary points to the onnxruntime shared library
	SynbenchORTLibrary = "SYNBENCH_ORT_LIBRARY"

	// SynbenchLabelOffset is passed to guest modules to number output labels
	SynbenchLabelOffset = "SYNBENCH_LABEL_OFFSET"

	// SynbenchModelsPattern and SynbenchImagesPattern pass the catalog
	// patterns to guest modules
	SynbenchModelsPattern = "SYNBENCH_MODELS_PATTERN"
	SynbenchImagesPattern = "SYNBENCH_IMAGES_PATTERN"
)
