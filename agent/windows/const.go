package windows

const (
	// Set by some provisioning images; takes precedence over GetFirmwareType.
	ENV_FIRMWARE_TYPE = "firmware_type"

	WBEM_LOCATOR = "WbemScripting.SWbemLocator"

	WBEM_FLAG_RETURN_IMMEDIATELY = 0x10
	WBEM_FLAG_FORWARD_ONLY       = 0x20

	LMEM_FIXED = 0x0000
)

// HRESULT values
const (
	S_OK           = 0
	S_FALSE        = 1
	RPC_E_TOO_LATE = 0x80010119

	WBEM_E_FAILED        = 0x80041001
	WBEM_E_INVALID_CLASS = 0x80041010
	WBEM_E_INVALID_QUERY = 0x80041017
)

// CoInitializeSecurity arguments
const (
	RPC_C_AUTHN_LEVEL_DEFAULT   = 0
	RPC_C_IMP_LEVEL_IMPERSONATE = 3
	EOAC_NONE                   = 0
)

// FIRMWARE_TYPE
const (
	FIRMWARE_TYPE_UNKNOWN = 0
	FIRMWARE_TYPE_BIOS    = 1
	FIRMWARE_TYPE_UEFI    = 2
)
