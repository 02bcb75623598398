package chconfig

import (
	"fmt"
	"strings"
)

// The rendering below deliberately writes the documents out section by
// section instead of going through encoding/xml: the clickhouse binary is
// picky about element layout (for example the replace="true" attribute on
// remote_servers and bare text nodes inside settings blocks), and the
// hand-written form keeps the output byte-stable for a given view.

func (c *LogConfig) toXML() string {
	return fmt.Sprintf(`
    <logger>
        <level>%s</level>
        <log>%s</log>
        <errorlog>%s</errorlog>
        <size>%s</size>
        <count>%d</count>
    </logger>
`, c.Level, c.Log, c.ErrorLog, c.Size, c.Count)
}

func (m *Macros) toXML() string {
	return fmt.Sprintf(`
    <macros>
        <shard>%d</shard>
        <replica>%d</replica>
        <cluster>%s</cluster>
    </macros>`, m.Shard, m.Replica, m.Cluster)
}

func (r *RemoteServers) toXML() string {
	var b strings.Builder
	fmt.Fprintf(&b, `
    <remote_servers replace="true">
        <%s>
            <secret>%s</secret>
            <shard>
                <internal_replication>true</internal_replication>`,
		r.Cluster, r.Secret)

	for _, replica := range r.Replicas {
		fmt.Fprintf(&b, `
                <replica>
                    <host>%s</host>
                    <port>%d</port>
                </replica>`, replica.Host, replica.Port)
	}

	fmt.Fprintf(&b, `
            </shard>
        </%s>
    </remote_servers>
        `, r.Cluster)

	return b.String()
}

func (k *KeeperNodes) toXML() string {
	var b strings.Builder
	b.WriteString("    <zookeeper>")
	for _, node := range k.Nodes {
		fmt.Fprintf(&b, `
        <node>
            <host>%s</host>
            <port>%d</port>
        </node>`, node.Host, node.Port)
	}
	b.WriteString("\n    </zookeeper>")
	return b.String()
}

func (r *RaftServers) toXML() string {
	var b strings.Builder
	for _, server := range r.Servers {
		fmt.Fprintf(&b, `
            <server>
                <id>%d</id>
                <hostname>%s</hostname>
                <port>%d</port>
            </server>
            `, server.ID, server.Hostname, server.Port)
	}
	return b.String()
}

// ToXML renders the full server configuration document.
func (c *ReplicaConfig) ToXML() string {
	userFilesPath := c.DataPath + "/user_files"
	formatSchemaPath := c.DataPath + "/format_schemas"

	return fmt.Sprintf(`
<clickhouse>
%s    <path>%s</path>

    <profiles>
        <default>
            <load_balancing>random</load_balancing>
        </default>

    </profiles>

    <users>
        <default>
            <password></password>
            <networks>
                <ip>::/0</ip>
            </networks>
            <profile>default</profile>
            <quota>default</quota>
        </default>
    </users>

    <quotas>
        <default>
            <interval>
                <duration>3600</duration>
                <queries>0</queries>
                <errors>0</errors>
                <result_rows>0</result_rows>
                <read_rows>0</read_rows>
                <execution_time>0</execution_time>
            </interval>
        </default>
    </quotas>

    <user_files_path>%s</user_files_path>
    <default_profile>default</default_profile>
    <format_schema_path>%s</format_schema_path>
    <display_name>%s-%d</display_name>
    <listen_host>%s</listen_host>
    <http_port>%d</http_port>
    <tcp_port>%d</tcp_port>
    <interserver_http_port>%d</interserver_http_port>
    <interserver_http_host>::1</interserver_http_host>
    <distributed_ddl>
        <!-- Cleanup settings (active tasks will not be removed) -->

        <!-- Controls task TTL (default 1 week) -->
        <task_max_lifetime>604800</task_max_lifetime>

        <!-- Controls how often cleanup should be performed (in seconds) -->
        <cleanup_delay_period>60</cleanup_delay_period>

        <!-- Controls how many tasks could be in the queue -->
        <max_tasks_in_queue>1000</max_tasks_in_queue>
     </distributed_ddl>
%s
%s
%s

</clickhouse>
`,
		c.Logger.toXML(),
		c.DataPath,
		userFilesPath,
		formatSchemaPath,
		c.Macros.Cluster, c.Macros.Replica,
		c.ListenHost,
		c.HTTPPort,
		c.TCPPort,
		c.InterserverHTTPPort,
		c.Macros.toXML(),
		c.RemoteServers.toXML(),
		c.Keepers.toXML(),
	)
}

// ToXML renders the full keeper configuration document. Automatic ensemble
// reconfiguration is disabled; membership changes arrive by rewriting this
// file, which the keeper hot-reloads.
func (c *KeeperConfig) ToXML() string {
	return fmt.Sprintf(`
<clickhouse>
%s    <listen_host>%s</listen_host>
    <keeper_server>
        <enable_reconfiguration>false</enable_reconfiguration>
        <tcp_port>%d</tcp_port>
        <server_id>%d</server_id>
        <log_storage_path>%s</log_storage_path>
        <snapshot_storage_path>%s</snapshot_storage_path>
        <coordination_settings>
            <operation_timeout_ms>%d</operation_timeout_ms>
            <session_timeout_ms>%d</session_timeout_ms>
            <raft_logs_level>%s</raft_logs_level>
        </coordination_settings>
        <raft_configuration>
%s
        </raft_configuration>
    </keeper_server>

</clickhouse>
`,
		c.Logger.toXML(),
		c.ListenHost,
		c.TCPPort,
		c.ServerID,
		c.LogStoragePath,
		c.SnapshotStoragePath,
		c.CoordinationSettings.OperationTimeoutMs,
		c.CoordinationSettings.SessionTimeoutMs,
		c.CoordinationSettings.RaftLogsLevel,
		c.RaftConfig.toXML(),
	)
}
