package integration

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"testing"
)

var (
	fakeIdP     *FakeIdentityProvider
	fakeCognito *FakeCognitoIdentity
)

// TestMain builds the binary once and starts the fake upstreams shared by
// every test in the package
func TestMain(m *testing.M) {
	flag.Parse()

	fmt.Println("Building vaultlink binary...")
	buildCmd := exec.Command("go", "build", "-o", vaultlinkBinary, "../cmd/vaultlink")
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr
	if err := buildCmd.Run(); err != nil {
		fmt.Printf("Failed to build vaultlink: %v\n", err)
		os.Exit(1)
	}

	logFile := "vaultlink-test.log"
	os.Setenv("VAULTLINK_LOG_FILE", logFile)

	var exitCode int
	defer func() {
		if exitCode != 0 {
			showTestFailureDiagnostics(logFile)
		}
		os.Exit(exitCode)
	}()

	fakeIdP = NewFakeIdentityProvider(fakeIdPPort, "Integration User")
	if err := fakeIdP.Start(); err != nil {
		fmt.Printf("Failed to start fake identity provider: %v\n", err)
		exitCode = 1
		return
	}
	defer func() {
		_ = fakeIdP.Stop()
	}()

	fakeCognito = NewFakeCognitoIdentity(fakeCognitoPort)
	if err := fakeCognito.Start(); err != nil {
		fmt.Printf("Failed to start fake identity pool: %v\n", err)
		exitCode = 1
		return
	}
	defer func() {
		_ = fakeCognito.Stop()
	}()

	exitCode = m.Run()
}

// showTestFailureDiagnostics displays the server log when tests fail
func showTestFailureDiagnostics(logFile string) {
	fmt.Println("\n========== TEST FAILURE DIAGNOSTICS ==========")

	data, err := os.ReadFile(logFile)
	if err != nil {
		fmt.Printf("No vaultlink log available: %v\n", err)
		return
	}
	fmt.Println("\nvaultlink logs:")
	fmt.Println("----------------------------------------------")
	fmt.Println(string(data))
	fmt.Println("==============================================")
}
