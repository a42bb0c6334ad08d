package container

const ServiceName = "docker"

const containerWorkingDirectory = "/workspace"

const defaultShell = "/bin/sh"

const scriptFileName = "run.sh"
const scriptPath = containerWorkingDirectory + "/" + scriptFileName
