package common

const (
	AGENT_NAME_LONG = "SysProbe"
	AGENT_FOLDER    = "SysProbe"
	AGENT_LOG_FILE  = "sysprobe.log"

	API_URL_SYSINFO = "/api/v3/sysinfo/"
)
